package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gramfinance/gramfin-go/internal/domain"

	"github.com/google/uuid"
)

const intentColumns = `id, loan_id, operation, user_id, address, amount,
	status, tx_hash, last_error, signed_tx, created_at, resolved_at`

func (s *Store) PutIntent(ctx context.Context, intent *domain.SettlementIntent) (*domain.SettlementIntent, error) {
	id := intent.ID
	if id == "" {
		id = uuid.NewString()
	}
	// ON CONFLICT DO NOTHING plus re-select: the returned row is the
	// stored intent whether this call created it or an earlier one did.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_intents
			(id, loan_id, operation, user_id, address, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'unresolved')
		ON CONFLICT (loan_id, operation) DO NOTHING`,
		id, intent.LoanID, intent.Operation, intent.UserID, intent.Address, intent.Amount)
	if err != nil {
		return nil, fmt.Errorf("insert settlement intent: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+intentColumns+` FROM settlement_intents
		WHERE loan_id = $1 AND operation = $2`, intent.LoanID, intent.Operation)
	return scanIntent(row)
}

func scanIntent(row rowScanner) (*domain.SettlementIntent, error) {
	var it domain.SettlementIntent
	var resolvedAt sql.NullTime
	err := row.Scan(&it.ID, &it.LoanID, &it.Operation, &it.UserID, &it.Address,
		&it.Amount, &it.Status, &it.TxHash, &it.LastError, &it.SignedTx,
		&it.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("scan settlement intent: %w", err)
	}
	if resolvedAt.Valid {
		it.ResolvedAt = &resolvedAt.Time
	}
	return &it, nil
}

func (s *Store) SaveIntentPayload(ctx context.Context, intentID, signedTx string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement_intents SET signed_tx = $2 WHERE id = $1`,
		intentID, signedTx)
	if err != nil {
		return fmt.Errorf("pin intent payload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "settlement_intent", ID: intentID}
	}
	return nil
}

func (s *Store) ResolveIntent(ctx context.Context, intentID, txHash string) error {
	return s.finishIntent(ctx, intentID, domain.IntentResolved, txHash, "")
}

func (s *Store) AbandonIntent(ctx context.Context, intentID, reason string) error {
	return s.finishIntent(ctx, intentID, domain.IntentAbandoned, "", reason)
}

func (s *Store) finishIntent(ctx context.Context, intentID string, status domain.IntentStatus, txHash, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement_intents
		SET status = $2, tx_hash = $3, last_error = $4, resolved_at = now()
		WHERE id = $1`, intentID, status, txHash, lastError)
	if err != nil {
		return fmt.Errorf("update settlement intent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "settlement_intent", ID: intentID}
	}
	return nil
}

func (s *Store) UnresolvedIntents(ctx context.Context) ([]domain.SettlementIntent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+intentColumns+` FROM settlement_intents
		WHERE status = 'unresolved'
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select unresolved intents: %w", err)
	}
	defer rows.Close()

	var out []domain.SettlementIntent
	for rows.Next() {
		it, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}
