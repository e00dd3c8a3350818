// Package service provides the business logic layer (use cases) of the
// loan engine: the loan lifecycle ledger and the financial services facade
// that chat commands land on.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gramfinance/gramfin-go/internal/credit"
	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/observability"
	"github.com/gramfinance/gramfin-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

// LoanLedger owns the loan lifecycle state machine and the monetary
// ledger (loans, savings, audit entries). Settlement is the facade's job;
// the ledger only records its outcomes.
type LoanLedger struct {
	store     port.Store
	evaluator *credit.Evaluator
	rate      float64
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewLoanLedger creates the ledger with the base interest rate applied to
// every new loan.
func NewLoanLedger(
	store port.Store,
	evaluator *credit.Evaluator,
	baseInterestRate float64,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LoanLedger {
	return &LoanLedger{
		store:     store,
		evaluator: evaluator,
		rate:      baseInterestRate,
		metrics:   metrics,
		logger:    logger,
	}
}

// MonthlyPayment computes the flat-rate installment:
// amount * (1 + rate) / duration, rounded to the currency's two places.
func MonthlyPayment(amount decimal.Decimal, rate float64, durationMonths int) decimal.Decimal {
	gross := amount.Mul(decimal.NewFromFloat(1 + rate))
	return gross.Div(decimal.NewFromInt(int64(durationMonths))).Round(2)
}

// Apply re-validates eligibility and, on approval, persists a new loan in
// pending state. A business-rule rejection comes back as the Decision, not
// an error; the error return carries storage faults only.
func (l *LoanLedger) Apply(ctx context.Context, userID string, amount decimal.Decimal, durationMonths int) (*domain.Loan, domain.Decision, error) {
	ctx, span := ledgerTracer.Start(ctx, "LoanLedger.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("loan.amount", amount.String()),
	)

	if durationMonths <= 0 {
		return nil, domain.Decision{
			Eligible: false,
			Reason:   "Loan duration must be at least one month",
		}, nil
	}

	decision, err := l.evaluator.Evaluate(ctx, userID, amount)
	if err != nil {
		return nil, domain.Decision{}, fmt.Errorf("evaluate eligibility: %w", err)
	}
	if !decision.Eligible {
		l.metrics.IncrDecision("rejected")
		return nil, decision, nil
	}

	now := time.Now().UTC()
	loan := &domain.Loan{
		ID:             uuid.NewString(),
		UserID:         userID,
		Amount:         amount,
		InterestRate:   l.rate,
		DurationMonths: durationMonths,
		MonthlyPayment: MonthlyPayment(amount, l.rate, durationMonths),
		Status:         domain.LoanPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The store re-checks the open-loan invariant atomically with the
	// insert; a concurrent application for the same user loses here.
	if err := l.store.CreateLoanExclusive(ctx, loan); err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			l.metrics.IncrDecision("rejected")
			return nil, domain.Decision{
				Eligible: false,
				Reason:   "You already have an active loan. Please complete it first.",
			}, nil
		}
		return nil, domain.Decision{}, fmt.Errorf("persist loan: %w", err)
	}

	l.metrics.IncrDecision("approved")
	l.logger.Info("loan application approved",
		zap.String("loan_id", loan.ID),
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.Int("duration_months", durationMonths),
	)
	return loan, decision, nil
}

// ConfirmDisbursement finalizes a pending loan from the settlement result.
// Success moves it to active and appends the disbursement entry in the
// same unit of work. A retryable failure (timeout, connectivity) leaves
// the loan pending for intent replay; any other failure moves it to
// failed — a loan must never activate when funds never moved.
func (l *LoanLedger) ConfirmDisbursement(ctx context.Context, loanID string, res domain.SettlementResult) error {
	ctx, span := ledgerTracer.Start(ctx, "LoanLedger.ConfirmDisbursement")
	defer span.End()

	loan, err := l.store.GetLoan(ctx, loanID)
	if err != nil {
		return fmt.Errorf("load loan: %w", err)
	}

	if res.Success {
		entry := &domain.Transaction{
			UserID:      loan.UserID,
			Type:        domain.TxnLoanDisbursement,
			Amount:      loan.Amount,
			Description: fmt.Sprintf("Loan disbursement of ₹%s (tx %s)", loan.Amount.StringFixed(2), res.TxHash),
		}
		if err := l.store.TransitionLoan(ctx, loanID, domain.LoanPending, domain.LoanActive, res.TxHash, entry); err != nil {
			return fmt.Errorf("activate loan: %w", err)
		}
		l.metrics.IncrLoanTransition(domain.LoanActive)
		return nil
	}

	if res.Retryable {
		l.logger.Warn("disbursement settlement inconclusive, loan stays pending",
			zap.String("loan_id", loanID),
			zap.String("error", res.Err),
		)
		return nil
	}

	if err := l.store.TransitionLoan(ctx, loanID, domain.LoanPending, domain.LoanFailed, "", nil); err != nil {
		return fmt.Errorf("fail loan: %w", err)
	}
	l.metrics.IncrLoanTransition(domain.LoanFailed)
	l.logger.Error("disbursement settlement failed",
		zap.String("loan_id", loanID),
		zap.String("error", res.Err),
	)
	return nil
}

// ConfirmRepayment finalizes an active loan from the settlement result.
// Success moves it to repaid with the repayment entry; failure leaves it
// active — repayment is always retryable.
func (l *LoanLedger) ConfirmRepayment(ctx context.Context, loanID string, res domain.SettlementResult) error {
	ctx, span := ledgerTracer.Start(ctx, "LoanLedger.ConfirmRepayment")
	defer span.End()

	loan, err := l.store.GetLoan(ctx, loanID)
	if err != nil {
		return fmt.Errorf("load loan: %w", err)
	}

	if !res.Success {
		l.logger.Warn("repayment settlement failed, loan stays active",
			zap.String("loan_id", loanID),
			zap.String("error", res.Err),
		)
		return nil
	}

	total := loan.TotalRepayable()
	entry := &domain.Transaction{
		UserID:      loan.UserID,
		Type:        domain.TxnLoanRepayment,
		Amount:      total,
		Description: fmt.Sprintf("Loan repayment of ₹%s (tx %s)", total.StringFixed(2), res.TxHash),
	}
	if err := l.store.TransitionLoan(ctx, loanID, domain.LoanActive, domain.LoanRepaid, res.TxHash, entry); err != nil {
		return fmt.Errorf("close loan: %w", err)
	}
	l.metrics.IncrLoanTransition(domain.LoanRepaid)
	return nil
}

// Deposit validates and applies a savings deposit, appending the audit
// entry atomically with the balance update. Savings are independent of
// loan state.
func (l *LoanLedger) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	ctx, span := ledgerTracer.Start(ctx, "LoanLedger.Deposit")
	defer span.End()

	if !amount.IsPositive() {
		return decimal.Zero, &domain.ErrValidation{Field: "amount", Message: "deposit amount must be positive"}
	}

	entry := &domain.Transaction{
		UserID:      userID,
		Type:        domain.TxnSavings,
		Amount:      amount,
		Description: fmt.Sprintf("Savings deposit of ₹%s", amount.StringFixed(2)),
	}
	balance, err := l.store.Deposit(ctx, userID, amount, entry)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply deposit: %w", err)
	}

	l.logger.Info("savings deposit applied",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
	)
	return balance, nil
}
