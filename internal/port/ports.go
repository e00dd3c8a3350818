// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations (Postgres store, on-chain gateway,
// in-memory fixtures).
package port

import (
	"context"

	"github.com/gramfinance/gramfin-go/internal/domain"

	"github.com/shopspring/decimal"
)

// FeatureProvider supplies behavioral credit signals for users that have
// no persisted profile yet. The synthetic provider stands in for a real
// ingestion feed; swapping it must not touch the scoring formula.
type FeatureProvider interface {
	Signals(ctx context.Context, userID string) (domain.CreditSignals, error)
}

// Settler drives the external (blockchain) ledger. Implementations never
// return a Go error for settlement failures: any network, signing or
// contract fault is folded into the result with Success=false.
// The intent carries the stable ID for the (loan, operation) pair plus,
// after a retryable failure, the payload signed on the first attempt;
// implementations must rebroadcast that payload unchanged so a replay
// cannot become a second transfer.
type Settler interface {
	Disburse(ctx context.Context, intent *domain.SettlementIntent) domain.SettlementResult
	CollectRepayment(ctx context.Context, intent *domain.SettlementIntent) domain.SettlementResult
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Store defines all data operations the engine needs from the relational
// collaborator. Implemented by the Postgres adapter and the in-memory
// store. Methods that bundle several writes are atomic: either every
// mutation commits or none does.
type Store interface {
	// Users. The lending engine only reads users; creation happens once,
	// at chat onboarding, when a sender is seen for the first time.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	// GetUserByPhone fails with *domain.ErrNotFound for unknown senders.
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error

	// Credit profiles
	// GetCreditProfile returns (nil, nil) when no profile exists.
	GetCreditProfile(ctx context.Context, userID string) (*domain.CreditProfile, error)
	CreateCreditProfile(ctx context.Context, profile *domain.CreditProfile) error
	SaveCreditScore(ctx context.Context, userID string, score int) error

	// Loans
	// CreateLoanExclusive inserts the loan only if the user has no other
	// loan in an open (pending/active) state, atomically with the check.
	// A racing insert surfaces as *domain.ErrConflict.
	CreateLoanExclusive(ctx context.Context, loan *domain.Loan) error
	GetLoan(ctx context.Context, loanID string) (*domain.Loan, error)
	// OpenLoan returns the user's pending or active loan, or (nil, nil).
	OpenLoan(ctx context.Context, userID string) (*domain.Loan, error)
	// TransitionLoan moves the loan from → to, failing with
	// *domain.ErrInvalidTransition if the stored status no longer matches
	// from. When entry is non-nil the ledger entry is appended in the same
	// unit of work. txHash, when set, is recorded on the loan.
	TransitionLoan(ctx context.Context, loanID string, from, to domain.LoanStatus, txHash string, entry *domain.Transaction) error

	// Savings
	// Deposit adds amount to the user's balance (creating the account
	// lazily) and appends the audit entry atomically. Returns the new
	// balance.
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, entry *domain.Transaction) (decimal.Decimal, error)
	// SavingsBalance creates the account lazily and returns its balance.
	SavingsBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	// Ledger entries
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)

	// Settlement intents
	// PutIntent persists the intent; if one already exists for
	// (loan_id, operation) the stored intent is returned unchanged so the
	// caller can resume it instead of minting a duplicate.
	PutIntent(ctx context.Context, intent *domain.SettlementIntent) (*domain.SettlementIntent, error)
	// SaveIntentPayload records the transaction signed for a retryable
	// attempt; replays pick it up via PutIntent / UnresolvedIntents.
	SaveIntentPayload(ctx context.Context, intentID, signedTx string) error
	ResolveIntent(ctx context.Context, intentID, txHash string) error
	AbandonIntent(ctx context.Context, intentID, reason string) error
	UnresolvedIntents(ctx context.Context) ([]domain.SettlementIntent, error)

	// Ping verifies the store is reachable (readiness probe).
	Ping(ctx context.Context) error
}
