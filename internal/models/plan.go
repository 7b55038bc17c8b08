package models

import "time"

// PlanID identifies a membership tier.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanBasic      PlanID = "basic"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// PlanLevels maps plan ids to their ordinal level. Only consulted by the
// legacy min-plan-level gating path; the plan_permissions allow-list is the
// canonical source of truth.
var PlanLevels = map[PlanID]int{
	PlanFree:       0,
	PlanBasic:      1,
	PlanPro:        2,
	PlanEnterprise: 3,
}

// IsPaid reports whether the plan is a paying tier. Paid tiers are exempt
// from the free-tier daily quota.
func (p PlanID) IsPaid() bool {
	return p != "" && p != PlanFree
}

// Plan is a catalog entry for a membership tier.
type Plan struct {
	ID             PlanID    `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	PriceCents     int       `json:"price_cents"`
	MonthlyCredits int       `json:"monthly_credits"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PlanPermission is one row of the (plan, feature) allow-list.
type PlanPermission struct {
	PlanID      PlanID `json:"plan_id"`
	FeatureCode string `json:"feature_code"`
	Enabled     bool   `json:"enabled"`
}

// CreditPackage is a one-off credits top-up product.
type CreditPackage struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	CreditsAmount int       `json:"credits_amount"`
	BonusCredits  int       `json:"bonus_credits"`
	PriceCents    int       `json:"price_cents"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}
