package models

// DenyReason explains why a permission check failed. The zero value means
// the check passed.
type DenyReason string

const (
	ReasonAllowed            DenyReason = ""
	ReasonNotLoggedIn        DenyReason = "not_logged_in"
	ReasonFeatureDisabled    DenyReason = "feature_disabled"
	ReasonInsufficientCredit DenyReason = "insufficient_credits"
	ReasonDailyLimitExceeded DenyReason = "daily_limit_exceeded"
)

// denyMessages maps every deny reason to exactly one user-facing message.
// Handlers surface these verbatim so the UI never interprets raw codes.
var denyMessages = map[DenyReason]string{
	ReasonNotLoggedIn:        "You need to sign in to use this feature.",
	ReasonFeatureDisabled:    "This feature is not included in your current plan.",
	ReasonInsufficientCredit: "You don't have enough credits. Please top up or upgrade your plan.",
	ReasonDailyLimitExceeded: "You've reached today's free usage limit for this feature. Upgrade for unlimited access.",
}

// Message returns the user-facing text for the reason, or an empty string
// when the check passed.
func (r DenyReason) Message() string {
	return denyMessages[r]
}

// PermissionResult is the outcome of a permission check. It is a pure
// evaluation: producing one never mutates balances or counters.
type PermissionResult struct {
	HasPermission   bool       `json:"has_permission"`
	Reason          DenyReason `json:"reason,omitempty"`
	Message         string     `json:"message,omitempty"`
	CreditsRequired int        `json:"credits_required"`
	DailyLimit      int        `json:"daily_limit"`
	DailyUsed       int        `json:"daily_used"`
}
