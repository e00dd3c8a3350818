package credit_test

import (
	"context"
	"testing"
	"time"

	"github.com/gramfinance/gramfin-go/internal/credit"
	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testPolicy = credit.Policy{
	MinLoanAmount:    decimal.NewFromInt(500),
	MaxLoanAmount:    decimal.NewFromInt(5000),
	MinEligibleScore: 400,
}

// strongSignals score well above the 400 floor with any adjustment.
var strongSignals = domain.CreditSignals{
	UPITransactionCount: 40,
	AvgMonthlySpending:  4000,
	UtilityPaymentRatio: 0.90,
}

// weakSignals score 510 with a fixed adjustment of 100.
var weakSignals = domain.CreditSignals{
	UPITransactionCount: 5,
	AvgMonthlySpending:  1000,
	UtilityPaymentRatio: 0.70,
}

func newEvaluator(store *memstore.Store, signals domain.CreditSignals, policy credit.Policy) *credit.Evaluator {
	scorer := newScorer(store, &credit.FixtureProvider{Fixed: signals}, fixedAdjust(100))
	return credit.NewEvaluator(policy, scorer, store)
}

func TestEvaluate_AmountOutOfBounds(t *testing.T) {
	store := memstore.New()
	ev := newEvaluator(store, strongSignals, testPolicy)

	for _, amount := range []int64{0, 100, 499, 5001, 100000} {
		d, err := ev.Evaluate(context.Background(), "user-1", decimal.NewFromInt(amount))
		if err != nil {
			t.Fatalf("amount %d: expected no error, got %v", amount, err)
		}
		if d.Eligible {
			t.Errorf("amount %d: expected rejection", amount)
		}
		if d.Reason != "Loan amount must be between ₹500 and ₹5000" {
			t.Errorf("amount %d: unexpected reason %q", amount, d.Reason)
		}
	}

	// Bounds are checked before scoring: no profile should have been created.
	p, err := store.GetCreditProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p != nil {
		t.Error("bounds rejection must not trigger scoring side effects")
	}
}

func TestEvaluate_ScoreBelowFloor(t *testing.T) {
	store := memstore.New()
	// weakSignals with adj=100 score 510; raise the floor to force the
	// insufficient-history path regardless of amount.
	policy := testPolicy
	policy.MinEligibleScore = 600
	ev := newEvaluator(store, weakSignals, policy)

	for _, amount := range []int64{500, 2000, 5000} {
		d, err := ev.Evaluate(context.Background(), "user-1", decimal.NewFromInt(amount))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.Eligible {
			t.Fatalf("amount %d: expected rejection on score", amount)
		}
		if d.Reason != "Credit score too low. Build your credit history first." {
			t.Errorf("unexpected reason %q", d.Reason)
		}
	}
}

func TestEvaluate_OpenLoanBlocks(t *testing.T) {
	for _, status := range []domain.LoanStatus{domain.LoanPending, domain.LoanActive} {
		t.Run(string(status), func(t *testing.T) {
			store := memstore.New()
			seedLoan(t, store, "user-1", status)
			ev := newEvaluator(store, strongSignals, testPolicy)

			d, err := ev.Evaluate(context.Background(), "user-1", decimal.NewFromInt(2000))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if d.Eligible {
				t.Fatal("expected rejection while a loan is open")
			}
			if d.Reason != "You already have an active loan. Please complete it first." {
				t.Errorf("unexpected reason %q", d.Reason)
			}
		})
	}
}

func TestEvaluate_TerminalLoanDoesNotBlock(t *testing.T) {
	for _, status := range []domain.LoanStatus{domain.LoanRepaid, domain.LoanRejected, domain.LoanFailed} {
		t.Run(string(status), func(t *testing.T) {
			store := memstore.New()
			seedLoan(t, store, "user-1", status)
			ev := newEvaluator(store, strongSignals, testPolicy)

			d, err := ev.Evaluate(context.Background(), "user-1", decimal.NewFromInt(2000))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !d.Eligible {
				t.Fatalf("expected approval after terminal loan, got %q", d.Reason)
			}
		})
	}
}

// seedLoan plants a loan in the given status, bypassing the exclusivity
// check for terminal states.
func seedLoan(t *testing.T, store *memstore.Store, userID string, status domain.LoanStatus) {
	t.Helper()
	loan := &domain.Loan{
		ID:             uuid.NewString(),
		UserID:         userID,
		Amount:         decimal.NewFromInt(1000),
		InterestRate:   0.03,
		DurationMonths: 6,
		MonthlyPayment: decimal.NewFromFloat(171.67),
		Status:         domain.LoanPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := store.CreateLoanExclusive(context.Background(), loan); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	switch status {
	case domain.LoanPending:
	case domain.LoanActive:
		mustTransition(t, store, loan.ID, domain.LoanPending, domain.LoanActive)
	case domain.LoanRepaid:
		mustTransition(t, store, loan.ID, domain.LoanPending, domain.LoanActive)
		mustTransition(t, store, loan.ID, domain.LoanActive, domain.LoanRepaid)
	case domain.LoanRejected:
		mustTransition(t, store, loan.ID, domain.LoanPending, domain.LoanRejected)
	case domain.LoanFailed:
		mustTransition(t, store, loan.ID, domain.LoanPending, domain.LoanFailed)
	}
}

func mustTransition(t *testing.T, store *memstore.Store, loanID string, from, to domain.LoanStatus) {
	t.Helper()
	if err := store.TransitionLoan(context.Background(), loanID, from, to, "", nil); err != nil {
		t.Fatalf("transition %s→%s: %v", from, to, err)
	}
}
