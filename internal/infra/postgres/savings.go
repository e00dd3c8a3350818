package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gramfinance/gramfin-go/internal/domain"

	"github.com/shopspring/decimal"
)

func (s *Store) Deposit(ctx context.Context, userID string, amount decimal.Decimal, entry *domain.Transaction) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO savings_accounts (user_id, balance)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE
				SET balance = savings_accounts.balance + EXCLUDED.balance,
				    last_updated = now()
			RETURNING balance`, userID, amount).Scan(&balance)
		if err != nil {
			// The user_id foreign key rejects deposits for unknown users,
			// matching the in-memory store.
			if foreignKeyViolation(err) {
				return &domain.ErrNotFound{Resource: "user", ID: userID}
			}
			return fmt.Errorf("upsert savings: %w", err)
		}
		if entry != nil {
			return insertEntry(ctx, tx, entry)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *Store) SavingsBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM savings_accounts WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// Account is created lazily; an absent row reads as zero.
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("select savings: %w", err)
	}
	return balance, nil
}
