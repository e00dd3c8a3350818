package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gramfinance/gramfin-go/internal/port"
	"github.com/gramfinance/gramfin-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Lending endpoints
// ============================================================

type applyLoanRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	DurationMonths int             `json:"duration_months"`
}

type outcomeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// applyLoanHandler handles POST /v1/users/{userId}/loans.
// A declined application is a 200 with success=false: the decision is
// the payload, not a transport error.
func applyLoanHandler(svc *service.FinancialService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "applyLoan")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		span.SetAttributes(attribute.String("user.id", userID))

		var req applyLoanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ok, msg := svc.ApplyForLoan(ctx, userID, req.Amount, req.DurationMonths)
		writeJSON(w, http.StatusOK, outcomeResponse{Success: ok, Message: msg})
	}
}

// repayLoanHandler handles POST /v1/users/{userId}/loans/repay.
func repayLoanHandler(svc *service.FinancialService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "repayLoan")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		ok, msg := svc.RepayLoan(ctx, userID)
		writeJSON(w, http.StatusOK, outcomeResponse{Success: ok, Message: msg})
	}
}

// getLoanHandler handles GET /v1/loans/{loanId}.
func getLoanHandler(store port.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loan, err := store.GetLoan(r.Context(), chi.URLParam(r, "loanId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, loan)
	}
}
