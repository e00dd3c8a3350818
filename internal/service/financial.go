package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gramfinance/gramfin-go/internal/credit"
	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/observability"
	"github.com/gramfinance/gramfin-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/financial")

// genericFailure is the message users see when an internal collaborator
// faults. Details stay in the logs; the loan/transaction records are left
// in a safely-observable state.
const genericFailure = "Something went wrong on our side. Please try again in a moment."

// FinancialService is the facade the chat transport invokes. Each public
// method is one externally-invoked operation composing scorer, evaluator,
// ledger and settlement gateway, returning a user-facing (ok, message)
// pair and never leaking internal errors.
type FinancialService struct {
	store         port.Store
	scorer        *credit.Scorer
	ledger        *LoanLedger
	settler       port.Settler
	settleTimeout time.Duration
	savingsRate   float64
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewFinancialService creates the facade with all dependencies injected.
// savingsRate is the annual rate quoted on savings summaries.
func NewFinancialService(
	store port.Store,
	scorer *credit.Scorer,
	ledger *LoanLedger,
	settler port.Settler,
	settleTimeout time.Duration,
	savingsRate float64,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *FinancialService {
	return &FinancialService{
		store:         store,
		scorer:        scorer,
		ledger:        ledger,
		settler:       settler,
		settleTimeout: settleTimeout,
		savingsRate:   savingsRate,
		metrics:       metrics,
		logger:        logger,
	}
}

// ApplyForLoan runs the full application flow: evaluate → persist pending
// → settle on-chain → finalize from the settlement result.
func (s *FinancialService) ApplyForLoan(ctx context.Context, userID string, amount decimal.Decimal, durationMonths int) (bool, string) {
	ctx, span := tracer.Start(ctx, "FinancialService.ApplyForLoan")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("apply_for_loan", time.Since(start)) }()

	loan, decision, err := s.ledger.Apply(ctx, userID, amount, durationMonths)
	if err != nil {
		s.logger.Error("loan application failed", zap.String("user_id", userID), zap.Error(err))
		return false, genericFailure
	}
	if !decision.Eligible {
		return false, decision.Reason
	}

	res, err := s.settleLoan(ctx, loan, domain.SettleDisburse)
	if err != nil {
		// Intent or wallet lookup failed before any chain call; the loan
		// stays pending and the intent replay path picks it up.
		s.logger.Error("disbursement not attempted",
			zap.String("loan_id", loan.ID), zap.Error(err))
		return false, genericFailure
	}

	if err := s.ledger.ConfirmDisbursement(ctx, loan.ID, res); err != nil {
		s.logger.Error("disbursement finalize failed",
			zap.String("loan_id", loan.ID), zap.Error(err))
		return false, genericFailure
	}

	if !res.Success {
		if res.Retryable {
			return false, "Your loan is approved but the transfer is delayed. We will retry shortly."
		}
		return false, "Loan approved but the fund transfer failed. Please try again later."
	}

	return true, fmt.Sprintf("Loan approved! ₹%s is on its way to your wallet. Monthly payment: ₹%s for %d months.",
		loan.Amount.StringFixed(2), loan.MonthlyPayment.StringFixed(2), loan.DurationMonths)
}

// RepayLoan collects the outstanding total of the user's active loan via
// the repayment contract call and closes the loan on success. Failures
// leave the loan active so the user can simply retry.
func (s *FinancialService) RepayLoan(ctx context.Context, userID string) (bool, string) {
	ctx, span := tracer.Start(ctx, "FinancialService.RepayLoan")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("repay_loan", time.Since(start)) }()

	loan, err := s.store.OpenLoan(ctx, userID)
	if err != nil {
		s.logger.Error("open loan lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false, genericFailure
	}
	if loan == nil || loan.Status != domain.LoanActive {
		return false, "You have no active loan to repay."
	}

	res, err := s.settleLoan(ctx, loan, domain.SettleRepay)
	if err != nil {
		s.logger.Error("repayment not attempted", zap.String("loan_id", loan.ID), zap.Error(err))
		return false, genericFailure
	}

	if err := s.ledger.ConfirmRepayment(ctx, loan.ID, res); err != nil {
		s.logger.Error("repayment finalize failed", zap.String("loan_id", loan.ID), zap.Error(err))
		return false, genericFailure
	}

	if !res.Success {
		return false, "Repayment could not be processed right now. Your loan is unchanged — please try again."
	}

	return true, fmt.Sprintf("Repayment of ₹%s received. Your loan is fully repaid — thank you!",
		loan.TotalRepayable().StringFixed(2))
}

// DepositSavings validates and applies a savings deposit.
func (s *FinancialService) DepositSavings(ctx context.Context, userID string, amount decimal.Decimal) (bool, string) {
	ctx, span := tracer.Start(ctx, "FinancialService.DepositSavings")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("deposit_savings", time.Since(start)) }()

	balance, err := s.ledger.Deposit(ctx, userID, amount)
	if err != nil {
		if _, ok := err.(*domain.ErrValidation); ok {
			return false, "Deposit amount must be a positive number."
		}
		s.logger.Error("savings deposit failed", zap.String("user_id", userID), zap.Error(err))
		return false, genericFailure
	}

	return true, fmt.Sprintf("₹%s added to savings. New balance: ₹%s",
		amount.StringFixed(2), balance.StringFixed(2))
}

// SavingsBalance returns the user's savings balance, creating the account
// lazily.
func (s *FinancialService) SavingsBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.SavingsBalance")
	defer span.End()

	return s.store.SavingsBalance(ctx, userID)
}

// SavingsRate returns the annual interest rate quoted on savings.
func (s *FinancialService) SavingsRate() float64 { return s.savingsRate }

// Overview gathers the user's savings balance, credit score and open loan
// concurrently for the "balance" chat command.
func (s *FinancialService) Overview(ctx context.Context, userID string) (*domain.AccountOverview, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.Overview")
	defer span.End()

	overview := &domain.AccountOverview{UserID: userID}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		balance, err := s.store.SavingsBalance(gCtx, userID)
		if err != nil {
			return fmt.Errorf("savings balance: %w", err)
		}
		overview.SavingsBalance = balance
		return nil
	})
	g.Go(func() error {
		score, err := s.scorer.Score(gCtx, userID)
		if err != nil {
			return fmt.Errorf("credit score: %w", err)
		}
		overview.CreditScore = score
		return nil
	})
	g.Go(func() error {
		loan, err := s.store.OpenLoan(gCtx, userID)
		if err != nil {
			return fmt.Errorf("open loan: %w", err)
		}
		overview.ActiveLoan = loan
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return overview, nil
}

// ReplayIntents re-attempts every unresolved settlement intent. Called
// from the ops endpoint; the (loan_id, operation) key guarantees a replay
// resumes the existing transfer instead of starting a second one.
func (s *FinancialService) ReplayIntents(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.ReplayIntents")
	defer span.End()

	intents, err := s.store.UnresolvedIntents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unresolved intents: %w", err)
	}

	replayed := 0
	for _, intent := range intents {
		loan, err := s.store.GetLoan(ctx, intent.LoanID)
		if err != nil {
			s.logger.Error("intent replay: loan lookup failed",
				zap.String("intent_id", intent.ID), zap.Error(err))
			continue
		}

		res := s.settle(ctx, &intent)
		if err := s.finalizeIntent(ctx, loan, &intent, res); err != nil {
			s.logger.Error("intent replay: finalize failed",
				zap.String("intent_id", intent.ID), zap.Error(err))
			continue
		}
		replayed++
	}
	return replayed, nil
}

// settleLoan persists the settlement intent, performs the on-chain call
// and resolves the intent. The intent row is written before the gateway is
// touched so a crash in between leaves a durable record to replay.
func (s *FinancialService) settleLoan(ctx context.Context, loan *domain.Loan, op domain.SettlementOperation) (domain.SettlementResult, error) {
	user, err := s.store.GetUser(ctx, loan.UserID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("resolve wallet: %w", err)
	}

	amount := loan.Amount
	if op == domain.SettleRepay {
		amount = loan.TotalRepayable()
	}

	intent, err := s.store.PutIntent(ctx, &domain.SettlementIntent{
		LoanID:    loan.ID,
		Operation: op,
		UserID:    loan.UserID,
		Address:   user.WalletAddress,
		Amount:    amount,
	})
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("persist intent: %w", err)
	}
	if intent.Status == domain.IntentResolved {
		// A previous attempt already settled this (loan, operation);
		// report it as success without touching the chain again.
		return domain.SettlementResult{Success: true, TxHash: intent.TxHash}, nil
	}

	res := s.settle(ctx, intent)
	if err := s.recordIntentOutcome(ctx, intent.ID, res); err != nil {
		s.logger.Error("intent bookkeeping failed", zap.String("intent_id", intent.ID), zap.Error(err))
	}
	return res, nil
}

// settle performs one gateway call with the configured timeout and maps a
// deadline hit onto a retryable failed result instead of hanging the
// request.
func (s *FinancialService) settle(ctx context.Context, intent *domain.SettlementIntent) domain.SettlementResult {
	ctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()

	var res domain.SettlementResult
	switch intent.Operation {
	case domain.SettleRepay:
		res = s.settler.CollectRepayment(ctx, intent)
	default:
		res = s.settler.Disburse(ctx, intent)
	}

	if res.Success {
		s.metrics.IncrSettlement(string(intent.Operation), "success")
	} else {
		s.metrics.IncrSettlement(string(intent.Operation), "failure")
		s.metrics.IncrExternalError("chain")
	}
	return res
}

func (s *FinancialService) recordIntentOutcome(ctx context.Context, intentID string, res domain.SettlementResult) error {
	switch {
	case res.Success:
		return s.store.ResolveIntent(ctx, intentID, res.TxHash)
	case res.Retryable:
		// Stays unresolved for replay. Pinning the signed payload here is
		// what stops a replay from minting a second transaction.
		if res.SignedTx != "" {
			return s.store.SaveIntentPayload(ctx, intentID, res.SignedTx)
		}
		return nil
	default:
		return s.store.AbandonIntent(ctx, intentID, res.Err)
	}
}

// finalizeIntent applies a replayed settlement outcome to the ledger and
// the intent record.
func (s *FinancialService) finalizeIntent(ctx context.Context, loan *domain.Loan, intent *domain.SettlementIntent, res domain.SettlementResult) error {
	if err := s.recordIntentOutcome(ctx, intent.ID, res); err != nil {
		return err
	}
	switch intent.Operation {
	case domain.SettleRepay:
		return s.ledger.ConfirmRepayment(ctx, loan.ID, res)
	default:
		return s.ledger.ConfirmDisbursement(ctx, loan.ID, res)
	}
}
