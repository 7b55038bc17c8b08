package models

import "time"

// PaymentKind distinguishes the two purchase flows.
type PaymentKind string

const (
	PaymentPlanPurchase   PaymentKind = "plan_purchase"
	PaymentCreditPurchase PaymentKind = "credit_purchase"
)

// Payment is an audit row recorded for every plan purchase or credits
// top-up.
type Payment struct {
	ID             int64       `json:"id"`
	UserID         int64       `json:"user_id"`
	Kind           PaymentKind `json:"kind"`
	PlanID         *PlanID     `json:"plan_id,omitempty"`
	PackageCode    *string     `json:"package_code,omitempty"`
	AmountCents    int         `json:"amount_cents"`
	CreditsGranted int         `json:"credits_granted"`
	Description    *string     `json:"description,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
