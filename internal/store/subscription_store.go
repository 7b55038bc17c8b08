package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keywordpilot/backend/internal/models"
)

// ErrInsufficientCredits is returned by DebitTransaction when the
// conditional balance decrement matches no row. This is the storage-level
// guard against two concurrent debits both spending the last credits.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrNoActiveSubscription is returned when a user has no active
// subscription row.
var ErrNoActiveSubscription = errors.New("no active subscription")

// Default free-tier provisioning values.
const (
	DefaultFreeCredits   = 100
	DefaultPeriodDays    = 30
	defaultProvisionPlan = models.PlanFree
)

const subscriptionColumns = `id, user_id, plan_id, status, current_credits, period_start, period_end, auto_renewal, created_at, updated_at`

// ListSubscriptionsByUser returns all subscription rows for a user, newest
// first. The resolver walks this list to find the authoritative record.
func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+subscriptionColumns+`
FROM subscriptions
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := scanSubscription(rows, &sub); err != nil {
			return nil, fmt.Errorf("store: scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate subscriptions: %w", err)
	}

	return subs, nil
}

// GetActiveSubscription returns the newest active subscription row for a
// user, or ErrNoActiveSubscription.
func (s *Store) GetActiveSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := scanSubscription(s.db.QueryRowContext(ctx, `
SELECT `+subscriptionColumns+`
FROM subscriptions
WHERE user_id = $1 AND status = 'active'
ORDER BY created_at DESC
LIMIT 1
`, userID), &sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("store: get active subscription: %w", err)
	}
	return &sub, nil
}

// CreateDefaultSubscription provisions the free-tier subscription for a
// brand-new user. A concurrent caller may have already created one; the
// partial unique index on (user_id) WHERE status = 'active' turns that race
// into a no-op insert, after which we simply re-read the winner's row.
func (s *Store) CreateDefaultSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := scanSubscription(s.db.QueryRowContext(ctx, `
INSERT INTO subscriptions (user_id, plan_id, status, current_credits, period_start, period_end)
VALUES ($1, $2, 'active', $3, now(), now() + make_interval(days => $4))
ON CONFLICT (user_id) WHERE status = 'active' DO NOTHING
RETURNING `+subscriptionColumns+`
`, userID, string(defaultProvisionPlan), DefaultFreeCredits, DefaultPeriodDays), &sub)
	if err == nil {
		return &sub, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: create default subscription: %w", err)
	}

	// Lost the provisioning race; the other caller's row is authoritative.
	return s.GetActiveSubscription(ctx, userID)
}

// MarkSubscriptionExpired transitions an active row past its period end to
// expired. Used by the resolver's lazy expiry and the background sweep.
func (s *Store) MarkSubscriptionExpired(ctx context.Context, subscriptionID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE subscriptions
SET status = 'expired', updated_at = now()
WHERE id = $1 AND status = 'active'
`, subscriptionID)
	if err != nil {
		return fmt.Errorf("store: mark subscription expired: %w", err)
	}
	return nil
}

// DebitTransaction atomically spends credits for one feature invocation:
// conditional balance decrement, usage-log append, daily-counter increment.
// All writes commit together or not at all. A zero-row decrement means the
// balance check failed at commit time and yields ErrInsufficientCredits.
func (s *Store) DebitTransaction(ctx context.Context, userID int64, featureCode string, cost int, description string) (*models.UsageLogEntry, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("store: debit cost must be positive, got %d", cost)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin debit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var remaining int
	err = tx.QueryRowContext(ctx, `
UPDATE subscriptions
SET current_credits = current_credits - $2, updated_at = now()
WHERE user_id = $1 AND status = 'active' AND current_credits >= $2
RETURNING current_credits
`, userID, cost).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInsufficientCredits
		}
		return nil, fmt.Errorf("store: debit balance: %w", err)
	}

	entry := &models.UsageLogEntry{
		ID:               uuid.NewString(),
		UserID:           userID,
		FeatureCode:      featureCode,
		CreditsUsed:      cost,
		RemainingCredits: remaining,
		Description:      description,
	}

	if err := tx.QueryRowContext(ctx, `
INSERT INTO usage_logs (id, user_id, feature_code, credits_used, remaining_credits, description)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at
`, entry.ID, entry.UserID, entry.FeatureCode, entry.CreditsUsed, entry.RemainingCredits, entry.Description).Scan(&entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: append usage log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO daily_usage (user_id, feature_code, usage_date, used)
VALUES ($1, $2, CURRENT_DATE, 1)
ON CONFLICT (user_id, feature_code, usage_date) DO UPDATE
SET used = daily_usage.used + 1
`, userID, featureCode); err != nil {
		return nil, fmt.Errorf("store: increment daily usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit debit tx: %w", err)
	}

	return entry, nil
}

// ApplyPlanPurchase upgrades (or provisions) the user's active subscription
// to the given plan: the monthly credit grant replaces the balance and the
// billing period resets. A payment audit row is written in the same
// transaction.
func (s *Store) ApplyPlanPurchase(ctx context.Context, userID int64, plan *models.Plan) (*models.Subscription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin plan purchase tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var sub models.Subscription
	err = scanSubscription(tx.QueryRowContext(ctx, `
UPDATE subscriptions
SET plan_id = $2,
    current_credits = $3,
    period_start = now(),
    period_end = now() + make_interval(days => $4),
    auto_renewal = TRUE,
    updated_at = now()
WHERE user_id = $1 AND status = 'active'
RETURNING `+subscriptionColumns+`
`, userID, string(plan.ID), plan.MonthlyCredits, DefaultPeriodDays), &sub)
	if errors.Is(err, sql.ErrNoRows) {
		// No active row to upgrade: provision one directly on the new plan.
		err = scanSubscription(tx.QueryRowContext(ctx, `
INSERT INTO subscriptions (user_id, plan_id, status, current_credits, period_start, period_end, auto_renewal)
VALUES ($1, $2, 'active', $3, now(), now() + make_interval(days => $4), TRUE)
RETURNING `+subscriptionColumns+`
`, userID, string(plan.ID), plan.MonthlyCredits, DefaultPeriodDays), &sub)
	}
	if err != nil {
		return nil, fmt.Errorf("store: apply plan purchase: %w", err)
	}

	description := fmt.Sprintf("Plan purchase: %s", plan.Name)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO payments (user_id, kind, plan_id, amount_cents, credits_granted, description)
VALUES ($1, $2, $3, $4, $5, $6)
`, userID, string(models.PaymentPlanPurchase), string(plan.ID), plan.PriceCents, plan.MonthlyCredits, description); err != nil {
		return nil, fmt.Errorf("store: record plan payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit plan purchase tx: %w", err)
	}

	return &sub, nil
}

// AddCredits tops up the user's active subscription from a credit package
// (base amount plus bonus) and records the payment in the same transaction.
func (s *Store) AddCredits(ctx context.Context, userID int64, pkg *models.CreditPackage) (*models.Subscription, error) {
	granted := pkg.CreditsAmount + pkg.BonusCredits

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin credit purchase tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var sub models.Subscription
	err = scanSubscription(tx.QueryRowContext(ctx, `
UPDATE subscriptions
SET current_credits = current_credits + $2, updated_at = now()
WHERE user_id = $1 AND status = 'active'
RETURNING `+subscriptionColumns+`
`, userID, granted), &sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("store: add credits: %w", err)
	}

	description := fmt.Sprintf("Credit top-up: %s", pkg.Name)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO payments (user_id, kind, package_code, amount_cents, credits_granted, description)
VALUES ($1, $2, $3, $4, $5, $6)
`, userID, string(models.PaymentCreditPurchase), pkg.Code, pkg.PriceCents, granted, description); err != nil {
		return nil, fmt.Errorf("store: record credit payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit credit purchase tx: %w", err)
	}

	return &sub, nil
}

// ExpireStaleSubscriptions bulk-expires active rows whose period ended
// before the cutoff. Used by the background sweep job.
func (s *Store) ExpireStaleSubscriptions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
UPDATE subscriptions
SET status = 'expired', updated_at = now()
WHERE status = 'active' AND auto_renewal = FALSE AND period_end < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: expire stale subscriptions: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// RenewDueSubscriptions re-grants the monthly credit allowance to active
// auto-renewing subscriptions past their period end and advances the
// billing period. Returns the number of renewed rows.
func (s *Store) RenewDueSubscriptions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
UPDATE subscriptions s
SET current_credits = p.monthly_credits,
    period_start = now(),
    period_end = now() + make_interval(days => $2),
    updated_at = now()
FROM plans p
WHERE p.id = s.plan_id
  AND s.status = 'active'
  AND s.auto_renewal = TRUE
  AND s.period_end < $1
`, cutoff, DefaultPeriodDays)
	if err != nil {
		return 0, fmt.Errorf("store: renew due subscriptions: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// rowScanner lets scanSubscription work with both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner, sub *models.Subscription) error {
	return row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.CurrentCredits,
		&sub.PeriodStart,
		&sub.PeriodEnd,
		&sub.AutoRenewal,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
}
