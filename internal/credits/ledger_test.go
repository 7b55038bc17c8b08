package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

func newTestLedger(subs *fakeSubs, catalog *fakeCatalog, usage *fakeUsage, cache *ViewCache) *Ledger {
	resolver := NewResolver(subs, catalog, cache)
	engine := NewEngine(resolver, catalog, usage, cache, false)
	return NewLedger(engine, subs, cache)
}

func TestDebitSuccess(t *testing.T) {
	subs := &fakeSubs{
		rows: []models.Subscription{activeSub(1, models.PlanPro, 50)},
		debitEntry: &models.UsageLogEntry{
			ID:               "0c3f1c5e-6c2f-4a58-9a5b-2f9246f1a001",
			UserID:           7,
			FeatureCode:      models.FeatureSerpAnalysis,
			CreditsUsed:      3,
			RemainingCredits: 47,
			CreatedAt:        time.Now(),
		},
	}
	ledger := newTestLedger(subs, testCatalog(), &fakeUsage{}, nil)

	entry, err := ledger.Debit(context.Background(), 7, models.FeatureSerpAnalysis, "serp: example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subs.debitCalls != 1 || subs.debitCost != 3 {
		t.Errorf("expected one debit of cost 3, got %d call(s) with cost %d", subs.debitCalls, subs.debitCost)
	}
	if entry.RemainingCredits != 47 {
		t.Errorf("expected remaining 47, got %d", entry.RemainingCredits)
	}
}

func TestDebitDeniedBeforeStore(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 50)}}
	ledger := newTestLedger(subs, testCatalog(), &fakeUsage{}, nil)

	_, err := ledger.Debit(context.Background(), 7, models.FeatureSerpAnalysis, "")
	if err == nil {
		t.Fatal("expected denial: serp_analysis is disabled on free")
	}
	result, ok := Denial(err)
	if !ok {
		t.Fatalf("expected a denial error, got %v", err)
	}
	if result.Reason != models.ReasonFeatureDisabled {
		t.Errorf("expected reason %q, got %q", models.ReasonFeatureDisabled, result.Reason)
	}
	if subs.debitCalls != 0 {
		t.Error("store must not be touched when the re-check denies")
	}
}

func TestDebitLosesRaceToConcurrentDebit(t *testing.T) {
	// The re-check saw enough credits, but the conditional update found the
	// balance already drained.
	subs := &fakeSubs{
		rows:     []models.Subscription{activeSub(1, models.PlanPro, 3)},
		debitErr: store.ErrInsufficientCredits,
	}
	ledger := newTestLedger(subs, testCatalog(), &fakeUsage{}, nil)

	_, err := ledger.Debit(context.Background(), 7, models.FeatureSerpAnalysis, "")
	result, ok := Denial(err)
	if !ok {
		t.Fatalf("expected a denial error, got %v", err)
	}
	if result.Reason != models.ReasonInsufficientCredit {
		t.Errorf("expected reason %q, got %q", models.ReasonInsufficientCredit, result.Reason)
	}
}

func TestDebitInfrastructureFailureIsNotADenial(t *testing.T) {
	subs := &fakeSubs{
		rows:     []models.Subscription{activeSub(1, models.PlanPro, 50)},
		debitErr: errors.New("driver: bad connection"),
	}
	ledger := newTestLedger(subs, testCatalog(), &fakeUsage{}, nil)

	_, err := ledger.Debit(context.Background(), 7, models.FeatureSerpAnalysis, "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := Denial(err); ok {
		t.Error("infrastructure failures must not masquerade as denials")
	}
}

func TestDebitZeroCostSkipsStore(t *testing.T) {
	catalog := testCatalog()
	catalog.features["free_preview"] = &models.Feature{
		Code:      "free_preview",
		Name:      "Free Preview",
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	catalog.perms[permKey(models.PlanFree, "free_preview")] = true

	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 50)}}
	ledger := newTestLedger(subs, catalog, &fakeUsage{}, nil)

	entry, err := ledger.Debit(context.Background(), 7, "free_preview", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.CreditsUsed != 0 {
		t.Errorf("expected zero credits used, got %d", entry.CreditsUsed)
	}
	if subs.debitCalls != 0 {
		t.Error("zero-cost features must not reach the store")
	}
}

func TestDebitInvalidatesCachedView(t *testing.T) {
	cache, err := NewViewCache(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	subs := &fakeSubs{
		rows: []models.Subscription{activeSub(1, models.PlanPro, 50)},
		debitEntry: &models.UsageLogEntry{
			UserID:           7,
			FeatureCode:      models.FeatureKeywordAnalysis,
			CreditsUsed:      1,
			RemainingCredits: 49,
		},
	}
	ledger := newTestLedger(subs, testCatalog(), &fakeUsage{}, cache)

	if _, err := ledger.Debit(context.Background(), 7, models.FeatureKeywordAnalysis, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cache.GetSubscription(7); ok {
		t.Error("expected the cached view to be dropped after a debit")
	}
}
