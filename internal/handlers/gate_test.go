package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keywordpilot/backend/internal/auth"
	"github.com/keywordpilot/backend/internal/credits"
	"github.com/keywordpilot/backend/internal/models"
)

type fakeChecker struct {
	result models.PermissionResult
}

func (f *fakeChecker) CheckPermission(ctx context.Context, userID int64, featureCode string) models.PermissionResult {
	return f.result
}

type fakeDebiter struct {
	entry *models.UsageLogEntry
	err   error
	calls int
}

func (f *fakeDebiter) Debit(ctx context.Context, userID int64, featureCode, description string) (*models.UsageLogEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func allowedResult(cost int) models.PermissionResult {
	return models.PermissionResult{HasPermission: true, CreditsRequired: cost}
}

func deniedResult(reason models.DenyReason) models.PermissionResult {
	return models.PermissionResult{HasPermission: false, Reason: reason, Message: reason.Message()}
}

// passthroughHandler accepts any body and runs the given function.
func passthroughHandler(run func(ctx context.Context, user *models.User, req any) (any, error)) FeatureHandler {
	return FeatureHandler{
		Parse: func(body []byte) (any, error) { return body, nil },
		Run:   run,
	}
}

// authedRequest builds a request carrying an authenticated user, the way
// the session middleware would.
func authedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/keywords/analyze", strings.NewReader(body))
	return req.WithContext(auth.WithUser(req.Context(), &models.User{ID: 7, ExternalID: "ext-7"}))
}

func TestGateAllowsAndDebits(t *testing.T) {
	checker := &fakeChecker{result: allowedResult(3)}
	debiter := &fakeDebiter{entry: &models.UsageLogEntry{CreditsUsed: 3, RemainingCredits: 47}}
	gate := NewGate(checker, debiter)

	var sawUser int64
	handler := gate.Wrap(models.FeatureSerpAnalysis, passthroughHandler(func(ctx context.Context, user *models.User, req any) (any, error) {
		sawUser = user.ID
		return map[string]any{"ok": true}, nil
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, `{"keyword":"espresso"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if debiter.calls != 1 {
		t.Errorf("expected one debit, got %d", debiter.calls)
	}
	if sawUser != 7 {
		t.Errorf("expected business handler to see user 7, got %d", sawUser)
	}

	var envelope struct {
		CreditsUsed      int `json:"credits_used"`
		RemainingCredits int `json:"remaining_credits"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.CreditsUsed != 3 || envelope.RemainingCredits != 47 {
		t.Errorf("unexpected envelope: %+v", envelope)
	}
}

func TestGateAnonymousGets401(t *testing.T) {
	checker := &fakeChecker{result: deniedResult(models.ReasonNotLoggedIn)}
	debiter := &fakeDebiter{}
	gate := NewGate(checker, debiter)

	handler := gate.Wrap(models.FeatureKeywordAnalysis, passthroughHandler(func(ctx context.Context, user *models.User, req any) (any, error) {
		t.Error("business handler must not run for a denied request")
		return nil, nil
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/keywords/analyze", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if debiter.calls != 0 {
		t.Error("denied requests must not debit")
	}

	var result models.PermissionResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Reason != models.ReasonNotLoggedIn || result.Message == "" {
		t.Errorf("expected reason and message in the body, got %+v", result)
	}
}

func TestGateDeniedGets403WithReason(t *testing.T) {
	checker := &fakeChecker{result: deniedResult(models.ReasonInsufficientCredit)}
	gate := NewGate(checker, &fakeDebiter{})

	handler := gate.Wrap(models.FeatureSerpAnalysis, passthroughHandler(func(ctx context.Context, user *models.User, req any) (any, error) {
		return nil, nil
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, `{}`))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGateDebitRaceLossBecomes403(t *testing.T) {
	checker := &fakeChecker{result: allowedResult(3)}
	debiter := &fakeDebiter{err: &credits.DeniedError{Result: deniedResult(models.ReasonInsufficientCredit)}}
	gate := NewGate(checker, debiter)

	handler := gate.Wrap(models.FeatureSerpAnalysis, passthroughHandler(func(ctx context.Context, user *models.User, req any) (any, error) {
		t.Error("business handler must not run when the debit is denied")
		return nil, nil
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, `{}`))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGateSpendFirstOnRunFailure(t *testing.T) {
	checker := &fakeChecker{result: allowedResult(1)}
	debiter := &fakeDebiter{entry: &models.UsageLogEntry{CreditsUsed: 1, RemainingCredits: 9}}
	gate := NewGate(checker, debiter)

	handler := gate.Wrap(models.FeatureKeywordAnalysis, passthroughHandler(func(ctx context.Context, user *models.User, req any) (any, error) {
		return nil, errors.New("provider timeout")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, `{"keyword":"espresso"}`))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if debiter.calls != 1 {
		t.Error("the debit must stand even when the handler fails")
	}
}

func TestGateValidationFailureIs400WithoutCharge(t *testing.T) {
	checker := &fakeChecker{result: allowedResult(1)}
	debiter := &fakeDebiter{entry: &models.UsageLogEntry{CreditsUsed: 1, RemainingCredits: 9}}
	gate := NewGate(checker, debiter)

	handler := gate.Wrap(models.FeatureKeywordAnalysis, AnalyzeKeyword(nil))

	for _, body := range []string{`{}`, `not json`, `{"keyword":"   "}`} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(t, body))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if debiter.calls != 0 {
		t.Errorf("invalid payloads must not cost credits, saw %d debits", debiter.calls)
	}
}

func TestGateRejectsNonPost(t *testing.T) {
	gate := NewGate(&fakeChecker{result: allowedResult(1)}, &fakeDebiter{})
	handler := gate.Wrap(models.FeatureKeywordAnalysis, passthroughHandler(func(ctx context.Context, user *models.User, req any) (any, error) {
		return nil, nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/keywords/analyze", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
