package models

import "time"

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionPending   SubscriptionStatus = "pending"
)

// Subscription is one membership record for a user. At most one active row
// per user is authoritative; legacy data may contain duplicates, which the
// resolver untangles deterministically.
type Subscription struct {
	ID             int64              `json:"id"`
	UserID         int64              `json:"user_id"`
	PlanID         PlanID             `json:"plan_id"`
	Status         SubscriptionStatus `json:"status"`
	CurrentCredits int                `json:"current_credits"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	AutoRenewal    bool               `json:"auto_renewal"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// IsExpired reports whether the row's billing period has ended as of now.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.PeriodEnd.Before(now)
}

// ResolvedSubscription is the denormalized view the permission engine works
// with: the authoritative subscription row merged with its plan's display
// data.
type ResolvedSubscription struct {
	Subscription
	PlanName       string `json:"plan_name"`
	PlanPriceCents int    `json:"plan_price_cents"`
	MonthlyCredits int    `json:"monthly_credits"`
}
