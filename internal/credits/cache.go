// Package credits implements the credits & membership permission engine:
// subscription resolution, permission evaluation, and the atomic debit
// transaction every billable feature routes through.
package credits

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keywordpilot/backend/internal/models"
)

const defaultCacheSize = 1024

// ViewCache is a small TTL cache for read-mostly views: resolved
// subscriptions keyed by user id and feature catalog entries keyed by code.
// It is a latency optimization only. The debit transaction always
// read-modify-writes the authoritative store; the ledger invalidates the
// user's entry after every successful debit or purchase.
type ViewCache struct {
	subs     *lru.Cache[int64, subCacheEntry]
	features *lru.Cache[string, featureCacheEntry]
	ttl      time.Duration
}

type subCacheEntry struct {
	view     models.ResolvedSubscription
	storedAt time.Time
}

type featureCacheEntry struct {
	feature  models.Feature
	storedAt time.Time
}

// NewViewCache creates a ViewCache with the given entry TTL. A zero or
// negative TTL disables caching entirely: every lookup misses.
func NewViewCache(ttl time.Duration) (*ViewCache, error) {
	subs, err := lru.New[int64, subCacheEntry](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	features, err := lru.New[string, featureCacheEntry](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &ViewCache{subs: subs, features: features, ttl: ttl}, nil
}

// GetSubscription returns the cached resolved view for a user, if fresh.
func (c *ViewCache) GetSubscription(userID int64) (*models.ResolvedSubscription, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	entry, ok := c.subs.Get(userID)
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.subs.Remove(userID)
		return nil, false
	}
	view := entry.view
	return &view, true
}

// SetSubscription stores the resolved view for a user.
func (c *ViewCache) SetSubscription(userID int64, view *models.ResolvedSubscription) {
	if c == nil || c.ttl <= 0 || view == nil {
		return
	}
	c.subs.Add(userID, subCacheEntry{view: *view, storedAt: time.Now()})
}

// InvalidateUser drops the cached view for a user. Called after every
// successful debit, purchase, or upgrade so the next check sees the new
// balance and plan.
func (c *ViewCache) InvalidateUser(userID int64) {
	if c == nil {
		return
	}
	c.subs.Remove(userID)
}

// GetFeature returns the cached catalog entry for a feature code, if fresh.
func (c *ViewCache) GetFeature(code string) (*models.Feature, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	entry, ok := c.features.Get(code)
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.features.Remove(code)
		return nil, false
	}
	feature := entry.feature
	return &feature, true
}

// SetFeature stores a catalog entry.
func (c *ViewCache) SetFeature(feature *models.Feature) {
	if c == nil || c.ttl <= 0 || feature == nil {
		return
	}
	c.features.Add(feature.Code, featureCacheEntry{feature: *feature, storedAt: time.Now()})
}
