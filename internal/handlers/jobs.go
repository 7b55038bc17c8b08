package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/keywordpilot/backend/internal/models"
)

// JobStatsStore defines the interface for job queue statistics.
type JobStatsStore interface {
	GetStats(ctx context.Context) (*models.JobStats, error)
}

// GetJobStats returns queue counters for the background maintenance jobs.
func GetJobStats(jobStore JobStatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		stats, err := jobStore.GetStats(r.Context())
		if err != nil {
			log.Printf("GetJobStats: failed to get stats: %v", err)
			http.Error(w, "failed to retrieve job statistics", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Printf("GetJobStats: failed to encode response: %v", err)
		}
	}
}
