// Package memstore is an in-memory implementation of port.Store. It backs
// local development (no DATABASE_URL) and tests, and mirrors the Postgres
// adapter's semantics including the one-open-loan-per-user guarantee.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gramfinance/gramfin-go/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store keeps everything behind one mutex. The engine is single-request
// synchronous per facade call, so a coarse lock is enough and makes the
// check-then-insert on loans trivially atomic.
type Store struct {
	mu           sync.Mutex
	users        map[string]*domain.User
	profiles     map[string]*domain.CreditProfile
	loans        map[string]*domain.Loan
	savings      map[string]*domain.SavingsAccount
	transactions []domain.Transaction
	intents      map[string]*domain.SettlementIntent // keyed loanID|operation
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]*domain.User),
		profiles: make(map[string]*domain.CreditProfile),
		loans:    make(map[string]*domain.Loan),
		savings:  make(map[string]*domain.SavingsAccount),
		intents:  make(map[string]*domain.SettlementIntent),
	}
}

// SeedUser registers a user record; the lending engine itself never
// creates users, only chat onboarding does.
func (s *Store) SeedUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByPhone(_ context.Context, phone string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: phone}
}

func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return &domain.ErrConflict{Message: "user already exists: " + user.ID}
	}
	for _, u := range s.users {
		if u.Phone != "" && u.Phone == user.Phone {
			return &domain.ErrConflict{Message: "phone already registered: " + user.Phone}
		}
	}
	cp := *user
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = &cp
	return nil
}

// ============================================================
// Credit profiles
// ============================================================

func (s *Store) GetCreditProfile(_ context.Context, userID string) (*domain.CreditProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) CreateCreditProfile(_ context.Context, profile *domain.CreditProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.UserID]; exists {
		return &domain.ErrConflict{Message: "credit profile already exists for " + profile.UserID}
	}
	cp := *profile
	s.profiles[profile.UserID] = &cp
	return nil
}

func (s *Store) SaveCreditScore(_ context.Context, userID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "credit_profile", ID: userID}
	}
	p.CalculatedScore = &score
	p.LastUpdated = time.Now().UTC()
	return nil
}

// ============================================================
// Loans
// ============================================================

func (s *Store) CreateLoanExclusive(_ context.Context, loan *domain.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.loans {
		if l.UserID == loan.UserID && l.Status.Open() {
			return &domain.ErrConflict{Message: "user already has an open loan"}
		}
	}
	cp := *loan
	s.loans[loan.ID] = &cp
	return nil
}

func (s *Store) GetLoan(_ context.Context, loanID string) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loans[loanID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: loanID}
	}
	cp := *l
	return &cp, nil
}

func (s *Store) OpenLoan(_ context.Context, userID string) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.loans {
		if l.UserID == userID && l.Status.Open() {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) TransitionLoan(_ context.Context, loanID string, from, to domain.LoanStatus, txHash string, entry *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loans[loanID]
	if !ok {
		return &domain.ErrNotFound{Resource: "loan", ID: loanID}
	}
	if l.Status != from || !from.CanTransition(to) {
		return &domain.ErrInvalidTransition{LoanID: loanID, From: l.Status, To: to}
	}

	l.Status = to
	l.UpdatedAt = time.Now().UTC()
	if txHash != "" {
		switch to {
		case domain.LoanActive:
			l.DisburseTxHash = txHash
		case domain.LoanRepaid:
			l.RepayTxHash = txHash
		}
	}
	if entry != nil {
		s.appendEntry(entry)
	}
	return nil
}

// ============================================================
// Savings
// ============================================================

func (s *Store) Deposit(_ context.Context, userID string, amount decimal.Decimal, entry *domain.Transaction) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return decimal.Zero, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	acct := s.savingsLocked(userID)
	acct.Balance = acct.Balance.Add(amount)
	acct.LastUpdated = time.Now().UTC()
	if entry != nil {
		s.appendEntry(entry)
	}
	return acct.Balance, nil
}

func (s *Store) SavingsBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.savingsLocked(userID).Balance, nil
}

// savingsLocked lazily creates the account. Caller holds s.mu.
func (s *Store) savingsLocked(userID string) *domain.SavingsAccount {
	acct, ok := s.savings[userID]
	if !ok {
		acct = &domain.SavingsAccount{
			UserID:      userID,
			Balance:     decimal.Zero,
			LastUpdated: time.Now().UTC(),
		}
		s.savings[userID] = acct
	}
	return acct
}

// ============================================================
// Ledger entries
// ============================================================

func (s *Store) appendEntry(entry *domain.Transaction) {
	cp := *entry
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.transactions = append(s.transactions, cp)
}

func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ============================================================
// Settlement intents
// ============================================================

func intentKey(loanID string, op domain.SettlementOperation) string {
	return fmt.Sprintf("%s|%s", loanID, op)
}

func (s *Store) PutIntent(_ context.Context, intent *domain.SettlementIntent) (*domain.SettlementIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := intentKey(intent.LoanID, intent.Operation)
	if existing, ok := s.intents[key]; ok {
		cp := *existing
		return &cp, nil
	}

	cp := *intent
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.Status = domain.IntentUnresolved
	s.intents[key] = &cp

	out := cp
	return &out, nil
}

func (s *Store) SaveIntentPayload(_ context.Context, intentID, signedTx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.intents {
		if it.ID == intentID {
			it.SignedTx = signedTx
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "settlement_intent", ID: intentID}
}

func (s *Store) ResolveIntent(_ context.Context, intentID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.intents {
		if it.ID == intentID {
			now := time.Now().UTC()
			it.Status = domain.IntentResolved
			it.TxHash = txHash
			it.ResolvedAt = &now
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "settlement_intent", ID: intentID}
}

func (s *Store) AbandonIntent(_ context.Context, intentID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.intents {
		if it.ID == intentID {
			now := time.Now().UTC()
			it.Status = domain.IntentAbandoned
			it.LastError = reason
			it.ResolvedAt = &now
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "settlement_intent", ID: intentID}
}

func (s *Store) UnresolvedIntents(_ context.Context) ([]domain.SettlementIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SettlementIntent
	for _, it := range s.intents {
		if it.Status == domain.IntentUnresolved {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }
