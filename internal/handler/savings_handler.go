package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gramfinance/gramfin-go/internal/port"
	"github.com/gramfinance/gramfin-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Savings & account endpoints
// ============================================================

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func depositHandler(svc *service.FinancialService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "depositSavings")
		defer span.End()

		var req depositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ok, msg := svc.DepositSavings(ctx, chi.URLParam(r, "userId"), req.Amount)
		writeJSON(w, http.StatusOK, outcomeResponse{Success: ok, Message: msg})
	}
}

func savingsBalanceHandler(svc *service.FinancialService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balance, err := svc.SavingsBalance(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"balance":              balance,
			"annual_interest_rate": svc.SavingsRate(),
		})
	}
}

func overviewHandler(svc *service.FinancialService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "accountOverview")
		defer span.End()

		ov, err := svc.Overview(ctx, chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ov)
	}
}

func transactionsHandler(store port.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 20)
		txns, err := store.ListTransactions(r.Context(), chi.URLParam(r, "userId"), limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
	}
}

func insuranceHandler(svc *service.FinancialService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans := svc.InsurancePlans(chi.URLParam(r, "userId"))
		writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
	}
}
