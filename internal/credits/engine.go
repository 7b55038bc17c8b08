package credits

import (
	"context"
	"errors"
	"log"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

// FreeTierDailyQuota caps invocations per feature per calendar day for
// free-tier users. Paid tiers have no daily cap.
const FreeTierDailyQuota = 10

// UsageCounter reports how many times a user invoked a feature today.
type UsageCounter interface {
	DailyUsed(ctx context.Context, userID int64, featureCode string) (int, error)
}

// Engine evaluates whether a user may invoke a feature and at what cost.
// CheckPermission is a pure read: it never mutates balances or counters,
// so re-running it with no intervening debit yields identical results.
type Engine struct {
	resolver *Resolver
	catalog  Catalog
	usage    UsageCounter
	cache    *ViewCache

	dailyQuota int

	// legacyGating enables the min-plan-level fallback for features with
	// no allow-list rows. Migration aid only; off in normal operation.
	legacyGating bool
}

// NewEngine creates a permission Engine. cache may be nil.
func NewEngine(resolver *Resolver, catalog Catalog, usage UsageCounter, cache *ViewCache, legacyGating bool) *Engine {
	return &Engine{
		resolver:     resolver,
		catalog:      catalog,
		usage:        usage,
		cache:        cache,
		dailyQuota:   FreeTierDailyQuota,
		legacyGating: legacyGating,
	}
}

// CheckPermission evaluates the ordered permission checks for one feature
// invocation. The first failing check wins.
func (e *Engine) CheckPermission(ctx context.Context, userID int64, featureCode string) models.PermissionResult {
	return e.evaluate(ctx, userID, featureCode, false)
}

// checkForDebit is the re-validation the ledger runs inside the debit path.
// It bypasses the subscription cache so the decision is made on
// authoritative data.
func (e *Engine) checkForDebit(ctx context.Context, userID int64, featureCode string) models.PermissionResult {
	return e.evaluate(ctx, userID, featureCode, true)
}

func (e *Engine) evaluate(ctx context.Context, userID int64, featureCode string, fresh bool) models.PermissionResult {
	if userID <= 0 {
		return deny(models.ReasonNotLoggedIn)
	}

	feature, ok := e.lookupFeature(ctx, featureCode)
	if !ok {
		return deny(models.ReasonFeatureDisabled)
	}

	var sub *models.ResolvedSubscription
	if fresh {
		sub = e.resolver.ResolveFresh(ctx, userID)
	} else {
		sub = e.resolver.Resolve(ctx, userID)
	}

	if !e.featureEnabledForPlan(ctx, sub.PlanID, feature) {
		return deny(models.ReasonFeatureDisabled)
	}

	if sub.CurrentCredits < feature.CreditsCost {
		result := deny(models.ReasonInsufficientCredit)
		result.CreditsRequired = feature.CreditsCost
		return result
	}

	result := models.PermissionResult{
		HasPermission:   true,
		CreditsRequired: feature.CreditsCost,
	}

	if !sub.PlanID.IsPaid() {
		used, err := e.usage.DailyUsed(ctx, userID, feature.Code)
		if err != nil {
			// Read failure on the counter fails open: availability over
			// strict quota accuracy, matching the read-path error policy.
			log.Printf("[credits] check: daily usage for user %d feature %s: %v", userID, feature.Code, err)
			used = 0
		}
		result.DailyLimit = e.dailyQuota
		result.DailyUsed = used
		if used >= e.dailyQuota {
			denied := deny(models.ReasonDailyLimitExceeded)
			denied.CreditsRequired = feature.CreditsCost
			denied.DailyLimit = e.dailyQuota
			denied.DailyUsed = used
			return denied
		}
	}

	return result
}

// lookupFeature reads the feature catalog, serving from the TTL cache when
// possible. A feature absent from the catalog is disabled, with one
// preserved exception: keyword_analysis predates the catalog and keeps an
// implicit default so a seeding gap cannot take down the primary feature.
func (e *Engine) lookupFeature(ctx context.Context, code string) (*models.Feature, bool) {
	if feature, ok := e.cache.GetFeature(code); ok {
		return feature, feature.IsActive
	}

	feature, err := e.catalog.GetFeature(ctx, code)
	if err != nil {
		if !errors.Is(err, store.ErrFeatureNotFound) {
			log.Printf("[credits] check: feature catalog read for %q: %v", code, err)
		}
		if code == models.FeatureKeywordAnalysis {
			return &models.Feature{
				Code:        models.FeatureKeywordAnalysis,
				Name:        "Keyword Analysis",
				CreditsCost: 1,
				IsActive:    true,
			}, true
		}
		return nil, false
	}

	e.cache.SetFeature(feature)
	return feature, feature.IsActive
}

// featureEnabledForPlan consults the plan-permission allow-list, the
// canonical gating source. When no row exists the feature is disabled
// unless the legacy min-plan-level migration flag is on.
func (e *Engine) featureEnabledForPlan(ctx context.Context, planID models.PlanID, feature *models.Feature) bool {
	enabled, found, err := e.catalog.FeaturePermission(ctx, planID, feature.Code)
	if err != nil {
		log.Printf("[credits] check: plan permission read for (%s, %s): %v", planID, feature.Code, err)
		return false
	}
	if found {
		return enabled
	}

	if e.legacyGating {
		required, ok := models.PlanLevels[feature.MinPlanLevel]
		if !ok {
			required = 0
		}
		return models.PlanLevels[planID] >= required
	}

	// The preserved keyword_analysis fallback has no catalog rows at all;
	// it stays available on every plan.
	if feature.Code == models.FeatureKeywordAnalysis && feature.CreatedAt.IsZero() {
		return true
	}

	return false
}

func deny(reason models.DenyReason) models.PermissionResult {
	return models.PermissionResult{
		HasPermission: false,
		Reason:        reason,
		Message:       reason.Message(),
	}
}
