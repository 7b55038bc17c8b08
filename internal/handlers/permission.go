package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/keywordpilot/backend/internal/auth"
	"github.com/keywordpilot/backend/internal/models"
)

// SubscriptionResolver produces the authoritative subscription view for a
// user.
type SubscriptionResolver interface {
	Resolve(ctx context.Context, userID int64) *models.ResolvedSubscription
}

// UsageHistoryStore lists a user's usage-log entries.
type UsageHistoryStore interface {
	ListUsageByUser(ctx context.Context, userID int64, limit, offset int) ([]models.UsageLogEntry, error)
}

type permissionCheckPayload struct {
	FeatureCode string `json:"feature_code"`
}

// CheckPermission evaluates whether the authenticated user may invoke a
// feature, without charging anything. The frontend uses this to grey out
// buttons before the user clicks them.
func CheckPermission(engine PermissionChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload permissionCheckPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("CheckPermission: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		payload.FeatureCode = strings.TrimSpace(payload.FeatureCode)
		if payload.FeatureCode == "" {
			http.Error(w, "feature_code is required", http.StatusBadRequest)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		result := engine.CheckPermission(r.Context(), userID, payload.FeatureCode)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// CreditsSummary returns the authenticated user's current balance and plan
// view.
func CreditsSummary(resolver SubscriptionResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		view := resolver.Resolve(r.Context(), userID)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"plan_id":         view.PlanID,
			"plan_name":       view.PlanName,
			"current_credits": view.CurrentCredits,
			"monthly_credits": view.MonthlyCredits,
			"period_start":    view.PeriodStart,
			"period_end":      view.PeriodEnd,
			"status":          view.Status,
		}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// UsageHistory returns the authenticated user's usage-log entries, newest
// first, with limit/offset pagination.
func UsageHistory(store UsageHistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)

		entries, err := store.ListUsageByUser(r.Context(), userID, limit, offset)
		if err != nil {
			log.Printf("UsageHistory: list usage for user %d: %v", userID, err)
			http.Error(w, "failed to load usage history", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"entries": entries,
			"limit":   limit,
			"offset":  offset,
		}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
