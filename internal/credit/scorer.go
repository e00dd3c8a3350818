package credit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/observability"
	"github.com/gramfinance/gramfin-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("credit")

// AdjustFunc produces the bounded adjustment added on top of the bucketed
// components. It models unmodeled signal noise, which makes the final
// score vary run to run; tests inject a constant. A production scorer
// would replace this with a deterministic feature.
type AdjustFunc func(min, max int) int

// RandomAdjust is the default adjustment source: uniform in [min, max].
func RandomAdjust(min, max int) int {
	return min + rand.Intn(max-min+1)
}

// Adjustment bounds applied on every scoring pass.
const (
	adjustMin = 100
	adjustMax = 200
)

// ScoreSignals is the pure scoring formula: three bucketed components plus
// the adjustment, clamped to [MinScore, MaxScore]. Keeping it free of I/O
// lets the formula be tested apart from feature sourcing.
func ScoreSignals(s domain.CreditSignals, adjustment int) int {
	score := 0

	// Transaction-count bucket
	switch {
	case s.UPITransactionCount > 30:
		score += 300
	case s.UPITransactionCount > 15:
		score += 200
	default:
		score += 100
	}

	// Spending bucket
	switch {
	case s.AvgMonthlySpending >= 3000 && s.AvgMonthlySpending <= 6000:
		score += 200
	case s.AvgMonthlySpending > 6000:
		score += 150
	default:
		score += 100
	}

	// Payment-history contribution
	score += int(math.Round(s.UtilityPaymentRatio * 300))

	score += adjustment

	if score < domain.MinScore {
		return domain.MinScore
	}
	if score > domain.MaxScore {
		return domain.MaxScore
	}
	return score
}

// Scorer computes and persists credit scores. Repeated calls recompute
// from the stored signals rather than accumulate; the only side effects
// are the lazy profile creation and the score/timestamp update.
type Scorer struct {
	store    port.Store
	features port.FeatureProvider
	adjust   AdjustFunc
	cache    port.Cache[int]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewScorer creates the scorer with all dependencies injected.
// A nil adjust falls back to RandomAdjust.
func NewScorer(
	store port.Store,
	features port.FeatureProvider,
	adjust AdjustFunc,
	cache port.Cache[int],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Scorer {
	if adjust == nil {
		adjust = RandomAdjust
	}
	return &Scorer{
		store:    store,
		features: features,
		adjust:   adjust,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// Score returns the user's credit score, creating the profile with
// synthesized signals on first use and persisting the computed value.
func (s *Scorer) Score(ctx context.Context, userID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Scorer.Score")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	cacheKey := "score:" + userID
	if cached, ok := s.cache.Get(cacheKey); ok {
		s.metrics.IncrCacheHit("score")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("score")

	profile, err := s.store.GetCreditProfile(ctx, userID)
	if err != nil {
		s.metrics.IncrExternalError("store")
		return 0, fmt.Errorf("load credit profile: %w", err)
	}

	if profile == nil {
		signals, err := s.features.Signals(ctx, userID)
		if err != nil {
			s.metrics.IncrExternalError("features")
			return 0, fmt.Errorf("synthesize signals: %w", err)
		}
		profile = &domain.CreditProfile{
			UserID:      userID,
			Signals:     signals,
			LastUpdated: time.Now().UTC(),
		}
		if err := s.store.CreateCreditProfile(ctx, profile); err != nil {
			s.metrics.IncrExternalError("store")
			return 0, fmt.Errorf("create credit profile: %w", err)
		}
		s.logger.Info("credit profile synthesized",
			zap.String("user_id", userID),
			zap.Int("upi_txn_count", signals.UPITransactionCount),
			zap.Float64("avg_spending", signals.AvgMonthlySpending),
		)
	}

	score := ScoreSignals(profile.Signals, s.adjust(adjustMin, adjustMax))

	if err := s.store.SaveCreditScore(ctx, userID, score); err != nil {
		s.metrics.IncrExternalError("store")
		return 0, fmt.Errorf("persist credit score: %w", err)
	}

	s.cache.Set(cacheKey, score)
	s.logger.Debug("credit score computed",
		zap.String("user_id", userID),
		zap.Int("score", score),
	)
	return score, nil
}
