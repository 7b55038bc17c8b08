package models

import "time"

// Billable feature codes. Each feature endpoint is registered with exactly
// one of these.
const (
	FeatureKeywordAnalysis    = "keyword_analysis"
	FeatureCompetitorAnalysis = "competitor_analysis"
	FeatureSerpAnalysis       = "serp_analysis"
	FeatureContentOutline     = "content_outline"
	FeatureTitleGeneration    = "title_generation"
)

// Feature is a catalog entry for a billable capability. Reference data,
// immutable at runtime.
type Feature struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	CreditsCost  int       `json:"credits_cost"`
	MinPlanLevel PlanID    `json:"min_plan_level,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
