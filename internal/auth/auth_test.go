package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	user, ok := f.users[externalID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func newTestSessions() *Sessions {
	return NewSessions("test-secret", &fakeUsers{
		users: map[string]*models.User{
			"ext-123": {ID: 7, ExternalID: "ext-123"},
		},
	})
}

func TestRequireAcceptsValidToken(t *testing.T) {
	sessions := newTestSessions()
	token, err := sessions.IssueToken("ext-123", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotID int64
	handler := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/credits/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != 7 {
		t.Errorf("expected user id 7 in context, got %d", gotID)
	}
}

func TestRequireRejectsMissingHeader(t *testing.T) {
	sessions := newTestSessions()
	handler := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a session")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/credits/summary", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRejectsUnknownUser(t *testing.T) {
	sessions := newTestSessions()
	token, err := sessions.IssueToken("ext-999", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	handler := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run for an unknown subject")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/credits/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRejectsTokenSignedWithOtherSecret(t *testing.T) {
	other := NewSessions("other-secret", &fakeUsers{})
	token, err := other.IssueToken("ext-123", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	sessions := newTestSessions()
	handler := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run for a forged token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/credits/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOptionalPassesAnonymousThrough(t *testing.T) {
	sessions := newTestSessions()
	var gotID int64 = -1
	handler := sessions.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/keywords/analyze", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != 0 {
		t.Errorf("expected anonymous user id 0, got %d", gotID)
	}
}

func TestOptionalAttachesUserWhenPresent(t *testing.T) {
	sessions := newTestSessions()
	token, err := sessions.IssueToken("ext-123", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotID int64
	handler := sessions.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/keywords/analyze", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotID != 7 {
		t.Errorf("expected user id 7 in context, got %d", gotID)
	}
}
