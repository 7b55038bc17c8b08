package credits

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

type fakeSubs struct {
	rows      []models.Subscription
	listErr   error
	listCalls int

	created    *models.Subscription
	createErr  error
	provisions int

	expired []int64

	debitEntry *models.UsageLogEntry
	debitErr   error
	debitCalls int
	debitCost  int
}

func (f *fakeSubs) ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rows, nil
}

func (f *fakeSubs) CreateDefaultSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	f.provisions++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeSubs) MarkSubscriptionExpired(ctx context.Context, subscriptionID int64) error {
	f.expired = append(f.expired, subscriptionID)
	return nil
}

func (f *fakeSubs) DebitTransaction(ctx context.Context, userID int64, featureCode string, cost int, description string) (*models.UsageLogEntry, error) {
	f.debitCalls++
	f.debitCost = cost
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	return f.debitEntry, nil
}

type fakeCatalog struct {
	features map[string]*models.Feature
	plans    map[models.PlanID]*models.Plan
	perms    map[string]bool
	permErr  error
	planErr  error
}

func permKey(planID models.PlanID, featureCode string) string {
	return fmt.Sprintf("%s|%s", planID, featureCode)
}

func (f *fakeCatalog) GetFeature(ctx context.Context, code string) (*models.Feature, error) {
	feature, ok := f.features[code]
	if !ok {
		return nil, store.ErrFeatureNotFound
	}
	return feature, nil
}

func (f *fakeCatalog) GetPlan(ctx context.Context, id models.PlanID) (*models.Plan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	plan, ok := f.plans[id]
	if !ok {
		return nil, store.ErrPlanNotFound
	}
	return plan, nil
}

func (f *fakeCatalog) FeaturePermission(ctx context.Context, planID models.PlanID, featureCode string) (bool, bool, error) {
	if f.permErr != nil {
		return false, false, f.permErr
	}
	enabled, found := f.perms[permKey(planID, featureCode)]
	return enabled, found, nil
}

type fakeUsage struct {
	used  int
	err   error
	calls int
}

func (f *fakeUsage) DailyUsed(ctx context.Context, userID int64, featureCode string) (int, error) {
	f.calls++
	return f.used, f.err
}

func activeSub(id int64, plan models.PlanID, credits int) models.Subscription {
	now := time.Now()
	return models.Subscription{
		ID:             id,
		UserID:         7,
		PlanID:         plan,
		Status:         models.SubscriptionActive,
		CurrentCredits: credits,
		PeriodStart:    now.AddDate(0, 0, -1),
		PeriodEnd:      now.AddDate(0, 0, 29),
	}
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		features: map[string]*models.Feature{
			models.FeatureKeywordAnalysis: {
				Code:        models.FeatureKeywordAnalysis,
				Name:        "Keyword Analysis",
				CreditsCost: 1,
				IsActive:    true,
				CreatedAt:   time.Now(),
			},
			models.FeatureSerpAnalysis: {
				Code:         models.FeatureSerpAnalysis,
				Name:         "SERP Analysis",
				CreditsCost:  3,
				MinPlanLevel: models.PlanBasic,
				IsActive:     true,
				CreatedAt:    time.Now(),
			},
		},
		plans: map[models.PlanID]*models.Plan{
			models.PlanFree: {ID: models.PlanFree, Name: "Free", MonthlyCredits: 100},
			models.PlanPro:  {ID: models.PlanPro, Name: "Pro", PriceCents: 4900, MonthlyCredits: 5000},
		},
		perms: map[string]bool{
			permKey(models.PlanFree, models.FeatureKeywordAnalysis): true,
			permKey(models.PlanPro, models.FeatureKeywordAnalysis):  true,
			permKey(models.PlanPro, models.FeatureSerpAnalysis):     true,
			permKey(models.PlanFree, models.FeatureSerpAnalysis):    false,
		},
	}
}

func newTestEngine(subs *fakeSubs, catalog *fakeCatalog, usage *fakeUsage, legacy bool) *Engine {
	resolver := NewResolver(subs, catalog, nil)
	return NewEngine(resolver, catalog, usage, nil, legacy)
}

func TestCheckPermissionAllowed(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanPro, 50)}}
	engine := newTestEngine(subs, testCatalog(), &fakeUsage{}, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureSerpAnalysis)
	if !result.HasPermission {
		t.Fatalf("expected allowed, got reason %q", result.Reason)
	}
	if result.CreditsRequired != 3 {
		t.Errorf("expected credits_required 3, got %d", result.CreditsRequired)
	}
	if result.DailyLimit != 0 {
		t.Errorf("paid plan should not carry a daily limit, got %d", result.DailyLimit)
	}
}

func TestCheckPermissionNotLoggedIn(t *testing.T) {
	engine := newTestEngine(&fakeSubs{}, testCatalog(), &fakeUsage{}, false)

	result := engine.CheckPermission(context.Background(), 0, models.FeatureKeywordAnalysis)
	if result.HasPermission {
		t.Fatal("expected denial for anonymous user")
	}
	if result.Reason != models.ReasonNotLoggedIn {
		t.Errorf("expected reason %q, got %q", models.ReasonNotLoggedIn, result.Reason)
	}
	if result.Message == "" {
		t.Error("expected a user-facing message")
	}
}

func TestCheckPermissionUnknownFeature(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanPro, 50)}}
	engine := newTestEngine(subs, testCatalog(), &fakeUsage{}, false)

	result := engine.CheckPermission(context.Background(), 7, "nonexistent_feature")
	if result.HasPermission {
		t.Fatal("expected denial for unknown feature")
	}
	if result.Reason != models.ReasonFeatureDisabled {
		t.Errorf("expected reason %q, got %q", models.ReasonFeatureDisabled, result.Reason)
	}
}

func TestCheckPermissionKeywordAnalysisCatalogFallback(t *testing.T) {
	// Empty catalog: keyword_analysis keeps its implicit default so a
	// seeding gap cannot take down the primary feature.
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 20)}}
	catalog := &fakeCatalog{
		features: map[string]*models.Feature{},
		plans:    map[models.PlanID]*models.Plan{},
		perms:    map[string]bool{},
	}
	engine := newTestEngine(subs, catalog, &fakeUsage{}, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureKeywordAnalysis)
	if !result.HasPermission {
		t.Fatalf("expected fallback to allow, got reason %q", result.Reason)
	}
	if result.CreditsRequired != 1 {
		t.Errorf("expected fallback cost 1, got %d", result.CreditsRequired)
	}
}

func TestCheckPermissionPlanNotAllowed(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 50)}}
	engine := newTestEngine(subs, testCatalog(), &fakeUsage{}, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureSerpAnalysis)
	if result.HasPermission {
		t.Fatal("expected denial: serp_analysis is disabled on free")
	}
	if result.Reason != models.ReasonFeatureDisabled {
		t.Errorf("expected reason %q, got %q", models.ReasonFeatureDisabled, result.Reason)
	}
}

func TestCheckPermissionMissingPermissionRowDefaultsDisabled(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanBasic, 50)}}
	engine := newTestEngine(subs, testCatalog(), &fakeUsage{}, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureSerpAnalysis)
	if result.HasPermission {
		t.Fatal("expected denial when no permission row exists")
	}
	if result.Reason != models.ReasonFeatureDisabled {
		t.Errorf("expected reason %q, got %q", models.ReasonFeatureDisabled, result.Reason)
	}
}

func TestCheckPermissionLegacyGatingFallback(t *testing.T) {
	catalog := testCatalog()
	engine := newTestEngine(&fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanBasic, 50)}}, catalog, &fakeUsage{}, true)

	// No allow-list row for (basic, serp_analysis); min plan level is basic,
	// so the legacy ordinal comparison admits it.
	result := engine.CheckPermission(context.Background(), 7, models.FeatureSerpAnalysis)
	if !result.HasPermission {
		t.Fatalf("expected legacy gating to allow basic, got reason %q", result.Reason)
	}

	// An explicit disabled row still beats the legacy fallback.
	free := newTestEngine(&fakeSubs{rows: []models.Subscription{activeSub(2, models.PlanFree, 50)}}, catalog, &fakeUsage{}, true)
	result = free.CheckPermission(context.Background(), 7, models.FeatureSerpAnalysis)
	if result.HasPermission {
		t.Fatal("expected explicit disabled row to win over legacy fallback")
	}
}

func TestCheckPermissionInsufficientCredits(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanPro, 2)}}
	engine := newTestEngine(subs, testCatalog(), &fakeUsage{}, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureSerpAnalysis)
	if result.HasPermission {
		t.Fatal("expected denial with 2 credits against cost 3")
	}
	if result.Reason != models.ReasonInsufficientCredit {
		t.Errorf("expected reason %q, got %q", models.ReasonInsufficientCredit, result.Reason)
	}
	if result.CreditsRequired != 3 {
		t.Errorf("expected credits_required 3 in denial, got %d", result.CreditsRequired)
	}
}

func TestCheckPermissionInsufficientCreditsBeforeDailyLimit(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 0)}}
	usage := &fakeUsage{used: FreeTierDailyQuota}
	engine := newTestEngine(subs, testCatalog(), usage, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureKeywordAnalysis)
	if result.Reason != models.ReasonInsufficientCredit {
		t.Errorf("expected insufficient_credits to be reported first, got %q", result.Reason)
	}
	if usage.calls != 0 {
		t.Error("daily counter should not be consulted once credits fail")
	}
}

func TestCheckPermissionDailyLimitFreeTier(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 50)}}
	usage := &fakeUsage{used: FreeTierDailyQuota}
	engine := newTestEngine(subs, testCatalog(), usage, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureKeywordAnalysis)
	if result.HasPermission {
		t.Fatal("expected denial at the daily quota")
	}
	if result.Reason != models.ReasonDailyLimitExceeded {
		t.Errorf("expected reason %q, got %q", models.ReasonDailyLimitExceeded, result.Reason)
	}
	if result.DailyLimit != FreeTierDailyQuota || result.DailyUsed != FreeTierDailyQuota {
		t.Errorf("expected quota fields %d/%d, got %d/%d",
			FreeTierDailyQuota, FreeTierDailyQuota, result.DailyUsed, result.DailyLimit)
	}
}

func TestCheckPermissionDailyLimitSkippedForPaid(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanPro, 50)}}
	usage := &fakeUsage{used: 500}
	engine := newTestEngine(subs, testCatalog(), usage, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureKeywordAnalysis)
	if !result.HasPermission {
		t.Fatalf("paid plan has no daily quota, got reason %q", result.Reason)
	}
	if usage.calls != 0 {
		t.Error("daily counter should not be consulted for paid plans")
	}
}

func TestCheckPermissionDailyCounterErrorFailsOpen(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 50)}}
	usage := &fakeUsage{err: errors.New("connection reset")}
	engine := newTestEngine(subs, testCatalog(), usage, false)

	result := engine.CheckPermission(context.Background(), 7, models.FeatureKeywordAnalysis)
	if !result.HasPermission {
		t.Fatalf("counter read failure should fail open, got reason %q", result.Reason)
	}
}

func TestCheckPermissionIsRepeatable(t *testing.T) {
	subs := &fakeSubs{rows: []models.Subscription{activeSub(1, models.PlanFree, 5)}}
	usage := &fakeUsage{used: 3}
	engine := newTestEngine(subs, testCatalog(), usage, false)

	first := engine.CheckPermission(context.Background(), 7, models.FeatureKeywordAnalysis)
	second := engine.CheckPermission(context.Background(), 7, models.FeatureKeywordAnalysis)
	if first != second {
		t.Errorf("repeated checks diverged: %+v vs %+v", first, second)
	}
	if subs.debitCalls != 0 {
		t.Error("a permission check must never debit")
	}
}
