package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gramfinance/gramfin-go/internal/chain"
	"github.com/gramfinance/gramfin-go/internal/chat"
	"github.com/gramfinance/gramfin-go/internal/config"
	"github.com/gramfinance/gramfin-go/internal/credit"
	"github.com/gramfinance/gramfin-go/internal/handler"
	"github.com/gramfinance/gramfin-go/internal/infra/cache"
	"github.com/gramfinance/gramfin-go/internal/infra/memstore"
	"github.com/gramfinance/gramfin-go/internal/infra/observability"
	"github.com/gramfinance/gramfin-go/internal/infra/postgres"
	"github.com/gramfinance/gramfin-go/internal/infra/resilience"
	"github.com/gramfinance/gramfin-go/internal/port"
	"github.com/gramfinance/gramfin-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const replayInterval = time.Minute

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_postgres", cfg.DatabaseURL != ""),
		zap.Float64("min_loan_amount", cfg.MinLoanAmount),
		zap.Float64("max_loan_amount", cfg.MaxLoanAmount),
		zap.Float64("base_interest_rate", cfg.BaseInterestRate),
		zap.Duration("settle_timeout", cfg.SettleTimeout),
		zap.String("settle_policy", string(cfg.SettlePolicy)),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "gramfin")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	scoreCache := cache.New[int](cfg.ScoreCacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Store ---
	var store port.Store
	if cfg.DatabaseURL != "" {
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pg.Close()
		store = pg
		logger.Info("using PostgreSQL store")
	} else {
		store = memstore.New()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// --- Settlement gateway ---
	gateway := chain.NewGateway(cfg, resilienceCfg, logger)

	// --- Services ---
	provider := credit.NewSyntheticProvider(time.Now().UnixNano())
	scorer := credit.NewScorer(store, provider, nil, scoreCache, metrics, logger)
	evaluator := credit.NewEvaluator(credit.Policy{
		MinLoanAmount:    decimal.NewFromFloat(cfg.MinLoanAmount),
		MaxLoanAmount:    decimal.NewFromFloat(cfg.MaxLoanAmount),
		MinEligibleScore: cfg.MinEligibleScore,
	}, scorer, store)
	ledger := service.NewLoanLedger(store, evaluator, cfg.BaseInterestRate, metrics, logger)
	facade := service.NewFinancialService(store, scorer, ledger, gateway, cfg.SettleTimeout, cfg.SavingsInterestRate, metrics, logger)

	chatSvc := chat.NewService(store, facade, cfg.DefaultLoanMonths, logger)
	chatHandler := chat.NewHandler(chatSvc, cfg.WebhookVerifyToken, logger)

	// --- Router ---
	router := handler.NewRouter(facade, chatHandler, store, metrics, logger)

	// --- Settlement replay loop ---
	replayCtx, stopReplay := context.WithCancel(context.Background())
	defer stopReplay()
	go replayLoop(replayCtx, facade, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	stopReplay()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// replayLoop periodically re-drives unresolved settlement intents so a
// chain outage only delays transfers instead of losing them.
func replayLoop(ctx context.Context, facade *service.FinancialService, logger *zap.Logger) {
	ticker := time.NewTicker(replayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			replayed, err := facade.ReplayIntents(ctx)
			if err != nil {
				logger.Warn("settlement replay pass failed", zap.Error(err))
				continue
			}
			if replayed > 0 {
				logger.Info("settlement intents replayed", zap.Int("count", replayed))
			}
		}
	}
}
