package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keywordpilot/backend/internal/models"
)

// DailyUsed returns how many times the user invoked the feature today.
// Missing counter rows mean zero uses; the date key rolling over is the
// implicit daily reset.
func (s *Store) DailyUsed(ctx context.Context, userID int64, featureCode string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, `
SELECT used
FROM daily_usage
WHERE user_id = $1 AND feature_code = $2 AND usage_date = CURRENT_DATE
`, userID, featureCode).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: get daily usage: %w", err)
	}
	return used, nil
}

// ListUsageByUser returns the user's usage log, newest first.
func (s *Store) ListUsageByUser(ctx context.Context, userID int64, limit, offset int) ([]models.UsageLogEntry, error) {
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, feature_code, credits_used, remaining_credits, description, created_at
FROM usage_logs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list usage logs: %w", err)
	}
	defer rows.Close()

	var entries []models.UsageLogEntry
	for rows.Next() {
		var e models.UsageLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.FeatureCode, &e.CreditsUsed, &e.RemainingCredits, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan usage log: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate usage logs: %w", err)
	}

	return entries, nil
}

// GetPaymentHistory returns the user's purchase audit rows, newest first.
func (s *Store) GetPaymentHistory(ctx context.Context, userID int64) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, kind, plan_id, package_code, amount_cents, credits_granted, description, created_at
FROM payments
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT 100
`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: get payment history: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var (
			p           models.Payment
			planID      sql.NullString
			packageCode sql.NullString
			description sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Kind, &planID, &packageCode, &p.AmountCents, &p.CreditsGranted, &description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan payment: %w", err)
		}
		if planID.Valid {
			id := models.PlanID(planID.String)
			p.PlanID = &id
		}
		p.PackageCode = nullStringPtr(packageCode)
		p.Description = nullStringPtr(description)
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate payments: %w", err)
	}

	return payments, nil
}
