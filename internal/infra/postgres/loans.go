package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gramfinance/gramfin-go/internal/domain"
)

const loanColumns = `id, user_id, amount, interest_rate, duration_months,
	monthly_payment, status, disburse_tx_hash, repay_tx_hash, created_at, updated_at`

func (s *Store) CreateLoanExclusive(ctx context.Context, loan *domain.Loan) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// Lock the user row so two concurrent applications for the same
		// user serialize here instead of both passing the check below.
		var userID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE id = $1 FOR UPDATE`, loan.UserID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "user", ID: loan.UserID}
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		var exists bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM loans
				WHERE user_id = $1 AND status IN ('pending', 'active')
			)`, loan.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check open loan: %w", err)
		}
		if exists {
			return &domain.ErrConflict{Message: "user already has an open loan"}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO loans
				(id, user_id, amount, interest_rate, duration_months,
				 monthly_payment, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			loan.ID, loan.UserID, loan.Amount, loan.InterestRate,
			loan.DurationMonths, loan.MonthlyPayment, loan.Status, loan.CreatedAt)
		return err
	})
	if uniqueViolation(err, "loans_one_open_per_user") {
		return &domain.ErrConflict{Message: "user already has an open loan"}
	}
	if err != nil {
		var conflict *domain.ErrConflict
		var notFound *domain.ErrNotFound
		if errors.As(err, &conflict) || errors.As(err, &notFound) {
			return err
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (s *Store) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, loanID)
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: loanID}
	}
	return loan, err
}

func (s *Store) OpenLoan(ctx context.Context, userID string) (*domain.Loan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE user_id = $1 AND status IN ('pending', 'active')
		LIMIT 1`, userID)
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return loan, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(&l.ID, &l.UserID, &l.Amount, &l.InterestRate, &l.DurationMonths,
		&l.MonthlyPayment, &l.Status, &l.DisburseTxHash, &l.RepayTxHash,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) TransitionLoan(ctx context.Context, loanID string, from, to domain.LoanStatus, txHash string, entry *domain.Transaction) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var current domain.LoanStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM loans WHERE id = $1 FOR UPDATE`, loanID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "loan", ID: loanID}
		}
		if err != nil {
			return fmt.Errorf("lock loan: %w", err)
		}
		if current != from || !from.CanTransition(to) {
			return &domain.ErrInvalidTransition{LoanID: loanID, From: current, To: to}
		}

		hashColumn := ""
		switch {
		case txHash != "" && to == domain.LoanActive:
			hashColumn = ", disburse_tx_hash = $3"
		case txHash != "" && to == domain.LoanRepaid:
			hashColumn = ", repay_tx_hash = $3"
		}
		query := `UPDATE loans SET status = $2, updated_at = now()` + hashColumn + ` WHERE id = $1`
		if hashColumn != "" {
			_, err = tx.ExecContext(ctx, query, loanID, to, txHash)
		} else {
			_, err = tx.ExecContext(ctx, query, loanID, to)
		}
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}

		if entry != nil {
			return insertEntry(ctx, tx, entry)
		}
		return nil
	})
}
