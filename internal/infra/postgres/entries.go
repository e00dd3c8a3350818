package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gramfinance/gramfin-go/internal/domain"

	"github.com/google/uuid"
)

// insertEntry appends an audit record inside the caller's transaction.
// Entries are append-only; there is no update or delete path.
func insertEntry(ctx context.Context, tx *sql.Tx, entry *domain.Transaction) error {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)`,
		id, entry.UserID, entry.Type, entry.Amount, entry.Description)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
