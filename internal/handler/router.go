package handler

import (
	"net/http"
	"time"

	"github.com/gramfinance/gramfin-go/internal/chat"
	"github.com/gramfinance/gramfin-go/internal/infra/observability"
	"github.com/gramfinance/gramfin-go/internal/port"
	"github.com/gramfinance/gramfin-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// The webhook is the primary surface; the /v1 API serves the ops
// dashboard and field-agent tooling.
func NewRouter(
	svc *service.FinancialService,
	chatHandler *chat.Handler,
	store port.Store,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- WhatsApp webhook ---
	r.Get("/webhook", chatHandler.Verify)
	r.Post("/webhook", chatHandler.Receive)

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Lending
		r.Post("/users/{userId}/loans", applyLoanHandler(svc, logger))
		r.Post("/users/{userId}/loans/repay", repayLoanHandler(svc, logger))
		r.Get("/loans/{loanId}", getLoanHandler(store, logger))

		// Savings & account
		r.Get("/users/{userId}/overview", overviewHandler(svc, logger))
		r.Get("/users/{userId}/savings", savingsBalanceHandler(svc, logger))
		r.Post("/users/{userId}/savings/deposits", depositHandler(svc, logger))
		r.Get("/users/{userId}/transactions", transactionsHandler(store, logger))
		r.Get("/users/{userId}/insurance", insuranceHandler(svc))

		// Ops
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))
		r.Post("/settlements/replay", replayHandler(svc, logger))
	})

	return r
}

// ============================================================
// Probes & ops
// ============================================================

func healthzHandler(store port.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := "healthy"
		storeStatus := "healthy"
		if err := store.Ping(r.Context()); err != nil {
			logger.Warn("store ping failed", zap.Error(err))
			status, storeStatus = "degraded", "unhealthy"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status": status,
			"services": []map[string]any{
				{"name": "gramfin-api", "status": "healthy"},
				{"name": "store", "status": storeStatus, "latency_ms": time.Since(start).Milliseconds()},
			},
			"checked_at": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.LedgerSnapshot())
	}
}

// replayHandler re-drives unresolved settlement intents. Normally run by
// the background loop; exposed so operators can force a pass after a
// chain outage clears.
func replayHandler(svc *service.FinancialService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "replaySettlements")
		defer span.End()

		replayed, err := svc.ReplayIntents(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"replayed": replayed})
	}
}
