package credits

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

// DeniedError carries the permission result for a debit refused during the
// in-transaction re-check. Callers unwrap it to render the denial exactly
// like a failed pre-check.
type DeniedError struct {
	Result models.PermissionResult
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("credits: debit denied: %s", e.Result.Reason)
}

// Denial extracts the permission result from a debit error, if the error
// represents a denial rather than an infrastructure failure.
func Denial(err error) (models.PermissionResult, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Result, true
	}
	return models.PermissionResult{}, false
}

// Ledger records feature usage. Debit is the only mutating entry point in
// the credits system: it re-validates permission on fresh data, then runs
// the atomic conditional debit in the store, so two concurrent debits can
// never overspend a balance.
type Ledger struct {
	engine *Engine
	subs   SubscriptionStore
	cache  *ViewCache
}

// NewLedger creates a Ledger sharing the engine's resolver and cache.
func NewLedger(engine *Engine, subs SubscriptionStore, cache *ViewCache) *Ledger {
	return &Ledger{engine: engine, subs: subs, cache: cache}
}

// Debit charges the user for one successful invocation of a feature. The
// returned entry reflects the post-debit balance. A denial comes back as a
// *DeniedError; any other error is an infrastructure failure and nothing
// was charged.
func (l *Ledger) Debit(ctx context.Context, userID int64, featureCode, description string) (*models.UsageLogEntry, error) {
	result := l.engine.checkForDebit(ctx, userID, featureCode)
	if !result.HasPermission {
		return nil, &DeniedError{Result: result}
	}

	// Zero-cost features pass the gate without touching the balance or the
	// daily counter.
	if result.CreditsRequired == 0 {
		sub := l.engine.resolver.Resolve(ctx, userID)
		return &models.UsageLogEntry{
			UserID:           userID,
			FeatureCode:      featureCode,
			CreditsUsed:      0,
			RemainingCredits: sub.CurrentCredits,
			Description:      description,
			CreatedAt:        time.Now(),
		}, nil
	}

	entry, err := l.subs.DebitTransaction(ctx, userID, featureCode, result.CreditsRequired, description)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) {
			// Lost a race against a concurrent debit between the re-check
			// and the conditional update. Surface it as a plain denial.
			l.cache.InvalidateUser(userID)
			denied := deny(models.ReasonInsufficientCredit)
			denied.CreditsRequired = result.CreditsRequired
			return nil, &DeniedError{Result: denied}
		}
		return nil, fmt.Errorf("credits: debit for user %d feature %s: %w", userID, featureCode, err)
	}

	l.cache.InvalidateUser(userID)
	log.Printf("[credits] debited %d credit(s) from user %d for %s, %d remaining",
		entry.CreditsUsed, userID, featureCode, entry.RemainingCredits)
	return entry, nil
}
