// Package domain defines the core business entities for the Gramfin
// microloan service. These models are independent of external services and
// represent the canonical data structures used throughout the engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Users
// ============================================================

// User mirrors the record owned by the persistence collaborator.
// The engine reads it (for the settlement wallet address) and never
// mutates it.
type User struct {
	ID            string    `json:"id"`
	Phone         string    `json:"phone,omitempty"`
	Name          string    `json:"name,omitempty"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// ============================================================
// Credit profile / scoring
// ============================================================

// CreditSignals are the behavioral inputs the scoring formula consumes.
// Today they come from a synthetic provider; a real ingestion feed can
// supply them without the formula changing.
type CreditSignals struct {
	// UPITransactionCount is the number of UPI transactions observed
	// over the lookback window.
	UPITransactionCount int `json:"upi_transaction_count"`

	// AvgMonthlySpending in rupees.
	AvgMonthlySpending float64 `json:"avg_monthly_spending"`

	// UtilityPaymentRatio is the share of utility bills paid on time,
	// in [0,1].
	UtilityPaymentRatio float64 `json:"utility_payment_ratio"`
}

// CreditProfile is the persisted behavioral record for one user, 1:1 with
// User. CalculatedScore is nil until the first scoring pass and, once set,
// always lies in [MinScore, MaxScore].
type CreditProfile struct {
	UserID          string        `json:"user_id"`
	Signals         CreditSignals `json:"signals"`
	CalculatedScore *int          `json:"calculated_score,omitempty"`
	LastUpdated     time.Time     `json:"last_updated"`
}

// Score bounds for any computed credit score.
const (
	MinScore = 300
	MaxScore = 850
)

// ============================================================
// Loans
// ============================================================

// LoanStatus is the loan lifecycle state.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanActive   LoanStatus = "active"
	LoanRepaid   LoanStatus = "repaid"
	LoanRejected LoanStatus = "rejected"
	LoanFailed   LoanStatus = "failed"
)

// loanTransitions encodes the lifecycle state machine:
// pending → {active, rejected, failed}; active → {repaid, failed}.
// rejected, repaid and failed are terminal.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanPending: {LoanActive, LoanRejected, LoanFailed},
	LoanActive:  {LoanRepaid, LoanFailed},
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	for _, t := range loanTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Open reports whether the status counts against the one-open-loan-per-user
// invariant.
func (s LoanStatus) Open() bool {
	return s == LoanPending || s == LoanActive
}

// Loan is a single microloan. Amount and MonthlyPayment are rupee amounts.
type Loan struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	InterestRate   float64         `json:"interest_rate"`
	DurationMonths int             `json:"duration_months"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	Status         LoanStatus      `json:"status"`
	DisburseTxHash string          `json:"disburse_tx_hash,omitempty"`
	RepayTxHash    string          `json:"repay_tx_hash,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TotalRepayable is the full amount owed over the loan's life:
// amount * (1 + rate), which equals monthly_payment * duration.
func (l *Loan) TotalRepayable() decimal.Decimal {
	rate := decimal.NewFromFloat(1 + l.InterestRate)
	return l.Amount.Mul(rate).Round(2)
}

// ============================================================
// Savings
// ============================================================

// SavingsAccount holds a user's savings balance, 1:1 with User.
// Balance only ever grows via deposits; it is never debited by the engine.
type SavingsAccount struct {
	UserID      string          `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	LastUpdated time.Time       `json:"last_updated"`
}

// ============================================================
// Ledger entries
// ============================================================

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxnSavings          TransactionType = "savings"
	TxnLoanDisbursement TransactionType = "loan_disbursement"
	TxnLoanRepayment    TransactionType = "loan_repayment"
)

// Transaction is an append-only audit record. Entries are never mutated
// or deleted after insert.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ============================================================
// Settlement
// ============================================================

// SettlementOperation identifies which contract entry point an intent
// targets.
type SettlementOperation string

const (
	SettleDisburse SettlementOperation = "disburse"
	SettleRepay    SettlementOperation = "repay"
)

// SettlementResult is the outcome of one attempted on-chain transfer.
// Success means the node accepted the transaction for broadcast (or, under
// the confirmed policy, that a receipt was observed). Retryable marks
// failures where funds provably did not move (timeouts, connectivity) and
// the intent may be replayed.
type SettlementResult struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"tx_hash,omitempty"`
	Err       string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`

	// SignedTx is the raw signed payload of the attempted transaction.
	// Recorded on the intent for retryable failures so a replay
	// rebroadcasts the identical transaction instead of signing a new
	// one.
	SignedTx string `json:"-"`
}

// IntentStatus tracks the lifecycle of a persisted settlement intent.
type IntentStatus string

const (
	IntentUnresolved IntentStatus = "unresolved"
	IntentResolved   IntentStatus = "resolved"
	IntentAbandoned  IntentStatus = "abandoned"
)

// SettlementIntent is the durable record of a settlement that should
// happen, written before the gateway is called. (loan_id, operation) is
// unique, which makes replays idempotent: a retry finds the existing
// intent instead of minting a second transfer.
type SettlementIntent struct {
	ID         string              `json:"id"`
	LoanID     string              `json:"loan_id"`
	Operation  SettlementOperation `json:"operation"`
	UserID     string              `json:"user_id"`
	Address    string              `json:"address"`
	Amount     decimal.Decimal     `json:"amount"`
	Status     IntentStatus        `json:"status"`
	TxHash     string              `json:"tx_hash,omitempty"`
	LastError  string              `json:"last_error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	ResolvedAt *time.Time          `json:"resolved_at,omitempty"`

	// SignedTx pins the transaction signed on the first attempt. While
	// it is set, every replay rebroadcasts this exact payload, keeping
	// the nonce and hash stable across process restarts.
	SignedTx string `json:"-"`
}

// ============================================================
// Decisions
// ============================================================

// Decision is the outcome of an eligibility evaluation. A negative
// decision is a normal business outcome, not an error.
type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

// ============================================================
// Insurance
// ============================================================

// InsurancePlan is a static recommendation entry for the rural segment.
type InsurancePlan struct {
	Type        string `json:"type"`
	Premium     string `json:"premium"`
	Coverage    string `json:"coverage"`
	Description string `json:"description"`
}

// ============================================================
// Overview / ops
// ============================================================

// AccountOverview aggregates a user's standing for the "balance" chat
// command and the ops endpoint.
type AccountOverview struct {
	UserID         string          `json:"user_id"`
	SavingsBalance decimal.Decimal `json:"savings_balance"`
	CreditScore    int             `json:"credit_score"`
	ActiveLoan     *Loan           `json:"active_loan,omitempty"`
}

// LedgerMetrics is a snapshot of engine counters for the ops endpoint.
type LedgerMetrics struct {
	LoansApproved      int64   `json:"loans_approved"`
	LoansRejected      int64   `json:"loans_rejected"`
	SettlementFailures int64   `json:"settlement_failures"`
	ApprovalRate       float64 `json:"approval_rate"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	Period             string  `json:"period"`
}
