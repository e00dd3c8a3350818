package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gramfinance/gramfin-go/internal/domain"
)

func (s *Store) GetCreditProfile(ctx context.Context, userID string) (*domain.CreditProfile, error) {
	var p domain.CreditProfile
	var score sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, upi_transaction_count, avg_monthly_spending,
		       utility_payment_ratio, calculated_score, last_updated
		FROM credit_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.Signals.UPITransactionCount, &p.Signals.AvgMonthlySpending,
			&p.Signals.UtilityPaymentRatio, &score, &p.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan credit profile: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		p.CalculatedScore = &v
	}
	return &p, nil
}

func (s *Store) CreateCreditProfile(ctx context.Context, profile *domain.CreditProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_profiles
			(user_id, upi_transaction_count, avg_monthly_spending, utility_payment_ratio)
		VALUES ($1, $2, $3, $4)`,
		profile.UserID, profile.Signals.UPITransactionCount,
		profile.Signals.AvgMonthlySpending, profile.Signals.UtilityPaymentRatio)
	if uniqueViolation(err, "") {
		return &domain.ErrConflict{Message: "credit profile already exists for " + profile.UserID}
	}
	if err != nil {
		return fmt.Errorf("insert credit profile: %w", err)
	}
	return nil
}

func (s *Store) SaveCreditScore(ctx context.Context, userID string, score int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credit_profiles
		SET calculated_score = $2, last_updated = now()
		WHERE user_id = $1`, userID, score)
	if err != nil {
		return fmt.Errorf("update credit score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "credit_profile", ID: userID}
	}
	return nil
}
