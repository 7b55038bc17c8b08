package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Health reports service liveness. It does not touch the database or any
// provider, so a 200 here only means the HTTP server is up.
func Health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":  "ok",
		"service": "keywordpilot-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
