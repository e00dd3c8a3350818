// Package credit implements the scoring and eligibility half of the loan
// engine: behavioral feature sourcing, the score formula, and the ordered
// rule checks a loan application must pass.
package credit

import (
	"context"
	"math/rand"
	"sync"

	"github.com/gramfinance/gramfin-go/internal/domain"
)

// Synthetic signal domain ranges. These model the external-signals
// ingestion step that is out of scope: a first-time user gets plausible
// placeholder behavior until a real feed takes over.
const (
	minTxnCount = 10
	maxTxnCount = 50
	minSpending = 2000.0
	maxSpending = 8000.0
	minUtility  = 0.70
	maxUtility  = 0.95
)

// SyntheticProvider generates placeholder credit signals inside fixed
// domain ranges. It implements port.FeatureProvider and is the stand-in
// for a production ingestion feed.
type SyntheticProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticProvider creates a provider seeded from src.
func NewSyntheticProvider(seed int64) *SyntheticProvider {
	return &SyntheticProvider{rng: rand.New(rand.NewSource(seed))}
}

// Signals synthesizes behavioral signals for a user with no profile.
func (p *SyntheticProvider) Signals(_ context.Context, _ string) (domain.CreditSignals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return domain.CreditSignals{
		UPITransactionCount: minTxnCount + p.rng.Intn(maxTxnCount-minTxnCount+1),
		AvgMonthlySpending:  minSpending + p.rng.Float64()*(maxSpending-minSpending),
		UtilityPaymentRatio: minUtility + p.rng.Float64()*(maxUtility-minUtility),
	}, nil
}

// FixtureProvider returns fixed signals. Used in tests and anywhere a
// deterministic profile is needed.
type FixtureProvider struct {
	Fixed domain.CreditSignals
}

func (p *FixtureProvider) Signals(_ context.Context, _ string) (domain.CreditSignals, error) {
	return p.Fixed, nil
}
