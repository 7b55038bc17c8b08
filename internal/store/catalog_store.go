package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keywordpilot/backend/internal/models"
)

// ErrFeatureNotFound is returned when a feature code is absent from the catalog.
var ErrFeatureNotFound = errors.New("feature not found")

// ErrPlanNotFound is returned when a plan is not found.
var ErrPlanNotFound = errors.New("plan not found")

// ErrPackageNotFound is returned when a credit package is not found.
var ErrPackageNotFound = errors.New("credit package not found")

// CatalogStore provides read access to the reference tables: plans,
// features, plan permissions, and credit packages.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore creates a new CatalogStore instance.
func NewCatalogStore(db *sql.DB) (*CatalogStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &CatalogStore{db: db}, nil
}

// GetFeature returns one feature catalog entry by code.
func (s *CatalogStore) GetFeature(ctx context.Context, code string) (*models.Feature, error) {
	var (
		f            models.Feature
		minPlanLevel sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT code, name, category, credits_cost, min_plan_level, is_active, created_at, updated_at
FROM features
WHERE code = $1
`, code).Scan(&f.Code, &f.Name, &f.Category, &f.CreditsCost, &minPlanLevel, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeatureNotFound
		}
		return nil, fmt.Errorf("store: get feature: %w", err)
	}
	if minPlanLevel.Valid {
		f.MinPlanLevel = models.PlanID(minPlanLevel.String)
	}
	return &f, nil
}

// ListFeatures returns all active features ordered by category and code.
func (s *CatalogStore) ListFeatures(ctx context.Context) ([]models.Feature, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT code, name, category, credits_cost, min_plan_level, is_active, created_at, updated_at
FROM features
WHERE is_active = TRUE
ORDER BY category ASC, code ASC
`)
	if err != nil {
		return nil, fmt.Errorf("store: list features: %w", err)
	}
	defer rows.Close()

	var features []models.Feature
	for rows.Next() {
		var (
			f            models.Feature
			minPlanLevel sql.NullString
		)
		if err := rows.Scan(&f.Code, &f.Name, &f.Category, &f.CreditsCost, &minPlanLevel, &f.IsActive, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan feature: %w", err)
		}
		if minPlanLevel.Valid {
			f.MinPlanLevel = models.PlanID(minPlanLevel.String)
		}
		features = append(features, f)
	}

	return features, rows.Err()
}

// GetPlan returns a plan by its id.
func (s *CatalogStore) GetPlan(ctx context.Context, id models.PlanID) (*models.Plan, error) {
	var p models.Plan
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, description, price_cents, monthly_credits, is_active, created_at, updated_at
FROM plans
WHERE id = $1
`, string(id)).Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.MonthlyCredits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("store: get plan: %w", err)
	}
	return &p, nil
}

// ListPlans returns all active plans ordered by price.
func (s *CatalogStore) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, price_cents, monthly_credits, is_active, created_at, updated_at
FROM plans
WHERE is_active = TRUE
ORDER BY price_cents ASC
`)
	if err != nil {
		return nil, fmt.Errorf("store: list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.MonthlyCredits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan plan: %w", err)
		}
		plans = append(plans, p)
	}

	return plans, rows.Err()
}

// FeaturePermission looks up the allow-list entry for a (plan, feature)
// pair. The second return value reports whether an entry exists at all,
// which callers use to decide whether the legacy min-plan-level fallback
// applies.
func (s *CatalogStore) FeaturePermission(ctx context.Context, planID models.PlanID, featureCode string) (enabled bool, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
SELECT enabled
FROM plan_permissions
WHERE plan_id = $1 AND feature_code = $2
`, string(planID), featureCode).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("store: get plan permission: %w", err)
	}
	return enabled, true, nil
}

// GetCreditPackage returns one credit package by code.
func (s *CatalogStore) GetCreditPackage(ctx context.Context, code string) (*models.CreditPackage, error) {
	var pkg models.CreditPackage
	err := s.db.QueryRowContext(ctx, `
SELECT code, name, credits_amount, bonus_credits, price_cents, is_active, created_at
FROM credit_packages
WHERE code = $1 AND is_active = TRUE
`, code).Scan(&pkg.Code, &pkg.Name, &pkg.CreditsAmount, &pkg.BonusCredits, &pkg.PriceCents, &pkg.IsActive, &pkg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("store: get credit package: %w", err)
	}
	return &pkg, nil
}

// ListCreditPackages returns all purchasable credit packages.
func (s *CatalogStore) ListCreditPackages(ctx context.Context) ([]models.CreditPackage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT code, name, credits_amount, bonus_credits, price_cents, is_active, created_at
FROM credit_packages
WHERE is_active = TRUE
ORDER BY price_cents ASC
`)
	if err != nil {
		return nil, fmt.Errorf("store: list credit packages: %w", err)
	}
	defer rows.Close()

	var packages []models.CreditPackage
	for rows.Next() {
		var pkg models.CreditPackage
		if err := rows.Scan(&pkg.Code, &pkg.Name, &pkg.CreditsAmount, &pkg.BonusCredits, &pkg.PriceCents, &pkg.IsActive, &pkg.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan credit package: %w", err)
		}
		packages = append(packages, pkg)
	}

	return packages, rows.Err()
}
