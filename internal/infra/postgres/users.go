package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gramfinance/gramfin-go/internal/domain"

	"github.com/lib/pq"
)

// uniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, optionally on one named constraint.
func uniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// foreignKeyViolation reports whether err is a PostgreSQL foreign-key
// violation.
func foreignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(phone, ''), name, wallet_address, created_at
		FROM users WHERE id = $1`, userID)
	return scanUser(row, userID)
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(phone, ''), name, wallet_address, created_at
		FROM users WHERE phone = $1`, phone)
	return scanUser(row, phone)
}

func scanUser(row *sql.Row, ref string) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.WalletAddress, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, phone, name, wallet_address)
		VALUES ($1, NULLIF($2, ''), $3, $4)`,
		user.ID, user.Phone, user.Name, user.WalletAddress)
	if uniqueViolation(err, "") {
		return &domain.ErrConflict{Message: "user already registered: " + user.ID}
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
