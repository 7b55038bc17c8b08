package credits

import (
	"context"
	"log"
	"time"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

// SubscriptionStore defines the behaviour the resolver and ledger require
// from the storage layer.
type SubscriptionStore interface {
	ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error)
	CreateDefaultSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	MarkSubscriptionExpired(ctx context.Context, subscriptionID int64) error
	DebitTransaction(ctx context.Context, userID int64, featureCode string, cost int, description string) (*models.UsageLogEntry, error)
}

// Catalog defines the reference-data reads the engine and resolver need.
type Catalog interface {
	GetFeature(ctx context.Context, code string) (*models.Feature, error)
	GetPlan(ctx context.Context, id models.PlanID) (*models.Plan, error)
	FeaturePermission(ctx context.Context, planID models.PlanID, featureCode string) (enabled bool, found bool, err error)
}

// planDisplayFallback backs the denormalized view when the plan catalog
// read fails. Must stay in sync with the seeded catalog.
var planDisplayFallback = map[models.PlanID]struct {
	name           string
	priceCents     int
	monthlyCredits int
}{
	models.PlanFree:       {"Free", 0, 100},
	models.PlanBasic:      {"Basic", 1900, 1000},
	models.PlanPro:        {"Pro", 4900, 5000},
	models.PlanEnterprise: {"Enterprise", 19900, 30000},
}

// Resolver determines a user's single authoritative subscription. Every
// permission decision depends on having some subscription, so Resolve never
// returns an error: data-layer failures degrade to a free-tier view.
type Resolver struct {
	subs    SubscriptionStore
	catalog Catalog
	cache   *ViewCache
	now     func() time.Time
}

// NewResolver creates a Resolver. cache may be nil to disable caching.
func NewResolver(subs SubscriptionStore, catalog Catalog, cache *ViewCache) *Resolver {
	return &Resolver{subs: subs, catalog: catalog, cache: cache, now: time.Now}
}

// Resolve returns the user's authoritative subscription view, serving from
// the TTL cache when possible.
func (r *Resolver) Resolve(ctx context.Context, userID int64) *models.ResolvedSubscription {
	if view, ok := r.cache.GetSubscription(userID); ok {
		return view
	}
	return r.ResolveFresh(ctx, userID)
}

// ResolveFresh resolves straight from the store, refreshing the cache. The
// debit path uses this so a permission re-check never runs on stale data.
func (r *Resolver) ResolveFresh(ctx context.Context, userID int64) *models.ResolvedSubscription {
	sub := r.resolveRow(ctx, userID)
	view := r.denormalize(ctx, sub)
	r.cache.SetSubscription(userID, view)
	return view
}

// resolveRow walks the user's subscription rows newest-first and picks the
// authoritative one, provisioning the free default when none survives.
func (r *Resolver) resolveRow(ctx context.Context, userID int64) *models.Subscription {
	rows, err := r.subs.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		log.Printf("[credits] resolve: list subscriptions for user %d: %v", userID, err)
		return fallbackSubscription(userID, r.now())
	}

	now := r.now()
	var freeCandidate *models.Subscription
	for i := range rows {
		sub := &rows[i]
		if sub.Status != models.SubscriptionActive {
			continue
		}
		if sub.IsExpired(now) {
			// Lazy expiry: stale active rows are retired as we walk past them.
			if err := r.subs.MarkSubscriptionExpired(ctx, sub.ID); err != nil {
				log.Printf("[credits] resolve: expire subscription %d: %v", sub.ID, err)
			}
			continue
		}
		if sub.PlanID.IsPaid() {
			// Paid beats free; rows are newest-first so the first paid hit wins.
			return sub
		}
		if freeCandidate == nil {
			freeCandidate = sub
		}
	}
	if freeCandidate != nil {
		return freeCandidate
	}

	created, err := r.subs.CreateDefaultSubscription(ctx, userID)
	if err != nil {
		log.Printf("[credits] resolve: provision default subscription for user %d: %v", userID, err)
		return fallbackSubscription(userID, now)
	}
	return created
}

// denormalize merges the subscription row with its plan's display data,
// falling back to the static table when the catalog read fails.
func (r *Resolver) denormalize(ctx context.Context, sub *models.Subscription) *models.ResolvedSubscription {
	view := &models.ResolvedSubscription{Subscription: *sub}

	plan, err := r.catalog.GetPlan(ctx, sub.PlanID)
	if err == nil {
		view.PlanName = plan.Name
		view.PlanPriceCents = plan.PriceCents
		view.MonthlyCredits = plan.MonthlyCredits
		return view
	}
	log.Printf("[credits] resolve: plan catalog read for %q: %v", sub.PlanID, err)

	if display, ok := planDisplayFallback[sub.PlanID]; ok {
		view.PlanName = display.name
		view.PlanPriceCents = display.priceCents
		view.MonthlyCredits = display.monthlyCredits
	} else {
		view.PlanName = string(sub.PlanID)
	}
	return view
}

// fallbackSubscription is the in-memory free-tier view returned when the
// store cannot be read. It is never persisted.
func fallbackSubscription(userID int64, now time.Time) *models.Subscription {
	return &models.Subscription{
		UserID:         userID,
		PlanID:         models.PlanFree,
		Status:         models.SubscriptionActive,
		CurrentCredits: store.DefaultFreeCredits,
		PeriodStart:    now,
		PeriodEnd:      now.AddDate(0, 0, store.DefaultPeriodDays),
	}
}
