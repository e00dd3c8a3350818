package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/memstore"

	"github.com/shopspring/decimal"
)

func TestDeposit_UnknownUserIsNotFound(t *testing.T) {
	s := memstore.New()

	_, err := s.Deposit(context.Background(), "ghost", decimal.NewFromInt(100), nil)

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound for an unknown user, got %v", err)
	}
	// The failed deposit must not leave an account behind.
	balance, err := s.SavingsBalance(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("savings balance: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("balance = %s, want 0", balance)
	}
}

func TestDeposit_SeededUserAccumulates(t *testing.T) {
	s := memstore.New()
	s.SeedUser(&domain.User{ID: "u1"})

	if _, err := s.Deposit(context.Background(), "u1", decimal.NewFromInt(100), nil); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	balance, err := s.Deposit(context.Background(), "u1", decimal.NewFromInt(50), nil)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("balance = %s, want 150", balance)
	}
}

func TestSaveIntentPayload_PinsForReplay(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	intent, err := s.PutIntent(ctx, &domain.SettlementIntent{
		LoanID:    "loan-1",
		Operation: domain.SettleDisburse,
	})
	if err != nil {
		t.Fatalf("put intent: %v", err)
	}
	if err := s.SaveIntentPayload(ctx, intent.ID, "0xf86b07"); err != nil {
		t.Fatalf("save payload: %v", err)
	}

	// Both replay entry points must see the pinned payload.
	again, err := s.PutIntent(ctx, &domain.SettlementIntent{
		LoanID:    "loan-1",
		Operation: domain.SettleDisburse,
	})
	if err != nil {
		t.Fatalf("re-put intent: %v", err)
	}
	if again.SignedTx != "0xf86b07" {
		t.Errorf("PutIntent payload = %q, want pinned transaction", again.SignedTx)
	}
	unresolved, err := s.UnresolvedIntents(ctx)
	if err != nil {
		t.Fatalf("unresolved intents: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].SignedTx != "0xf86b07" {
		t.Errorf("unresolved = %+v, want one intent with the pinned transaction", unresolved)
	}
}
