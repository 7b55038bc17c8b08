package models

import "time"

// UsageLogEntry is the append-only audit record of a single debit. Created
// exactly once per successful debit, never mutated.
type UsageLogEntry struct {
	ID               string    `json:"id"`
	UserID           int64     `json:"user_id"`
	FeatureCode      string    `json:"feature_code"`
	CreditsUsed      int       `json:"credits_used"`
	RemainingCredits int       `json:"remaining_credits"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// DailyUsage counts invocations of a feature by a user on one calendar day.
// Only consulted for the free-tier daily quota; the date key rolling over
// is the implicit reset.
type DailyUsage struct {
	UserID      int64     `json:"user_id"`
	FeatureCode string    `json:"feature_code"`
	UsageDate   time.Time `json:"usage_date"`
	Used        int       `json:"used"`
}
