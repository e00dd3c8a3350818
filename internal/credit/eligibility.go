package credit

import (
	"context"
	"fmt"

	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/port"

	"github.com/shopspring/decimal"
)

// Policy holds the lending rules the evaluator applies.
type Policy struct {
	MinLoanAmount    decimal.Decimal
	MaxLoanAmount    decimal.Decimal
	MinEligibleScore int
}

// Evaluator applies the ordered eligibility checks to a loan request.
// It is a pure decision over current persisted state; aside from the
// scorer's own persistence it mutates nothing.
type Evaluator struct {
	policy Policy
	scorer *Scorer
	store  port.Store
}

// NewEvaluator creates an evaluator with the given lending policy.
func NewEvaluator(policy Policy, scorer *Scorer, store port.Store) *Evaluator {
	return &Evaluator{policy: policy, scorer: scorer, store: store}
}

// Evaluate runs the ordered checks, first failure wins:
//  1. amount outside [min, max]
//  2. credit score below the floor
//  3. an open (pending/active) loan already exists
//
// A negative decision is a normal outcome; the error return carries
// infrastructure faults only.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, amount decimal.Decimal) (domain.Decision, error) {
	ctx, span := tracer.Start(ctx, "Evaluator.Evaluate")
	defer span.End()

	if amount.LessThan(e.policy.MinLoanAmount) || amount.GreaterThan(e.policy.MaxLoanAmount) {
		return domain.Decision{
			Eligible: false,
			Reason: fmt.Sprintf("Loan amount must be between ₹%s and ₹%s",
				e.policy.MinLoanAmount.StringFixed(0), e.policy.MaxLoanAmount.StringFixed(0)),
		}, nil
	}

	score, err := e.scorer.Score(ctx, userID)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("score user: %w", err)
	}
	if score < e.policy.MinEligibleScore {
		return domain.Decision{
			Eligible: false,
			Reason:   "Credit score too low. Build your credit history first.",
		}, nil
	}

	open, err := e.store.OpenLoan(ctx, userID)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("check open loans: %w", err)
	}
	if open != nil {
		return domain.Decision{
			Eligible: false,
			Reason:   "You already have an active loan. Please complete it first.",
		}, nil
	}

	return domain.Decision{Eligible: true, Reason: "You are eligible for this loan!"}, nil
}
