package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/keywordpilot/backend/internal/auth"
	"github.com/keywordpilot/backend/internal/models"
)

// MetricsStore defines the behaviour required from the storage client used
// by the metrics handlers.
type MetricsStore interface {
	GetUserRequests(ctx context.Context, userID int64, limit, offset int) ([]models.Request, error)
	GetUserMetrics(ctx context.Context, userID int64) (*models.RequestMetrics, error)
}

// UserMetrics returns aggregated request metrics for the authenticated user.
func UserMetrics(store MetricsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		metrics, err := store.GetUserMetrics(r.Context(), userID)
		if err != nil {
			log.Printf("UserMetrics: load metrics for user %d: %v", userID, err)
			http.Error(w, "failed to get user metrics", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// UserRequests returns detailed request history for the authenticated user.
func UserRequests(store MetricsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)

		requests, err := store.GetUserRequests(r.Context(), userID, limit, offset)
		if err != nil {
			log.Printf("UserRequests: load requests for user %d: %v", userID, err)
			http.Error(w, "failed to get user requests", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"requests": requests,
			"limit":    limit,
			"offset":   offset,
		}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}
