package handlers

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/keywordpilot/backend/internal/models"
)

// IdentityStore defines the behaviour required from the storage client used
// by the identity-sync handler.
type IdentityStore interface {
	UpsertUser(ctx context.Context, payload models.IdentitySyncPayload) (*models.User, error)
}

// TokenIssuer mints session tokens for synced identities.
type TokenIssuer interface {
	IssueToken(externalID string, ttl time.Duration) (string, error)
}

// SyncSecretHeader carries the shared secret proving a sync request comes
// from the identity provider and not an arbitrary caller.
const SyncSecretHeader = "X-Sync-Secret"

// IdentitySync accepts a profile forwarded by the identity provider after a
// successful login, upserts the local user row, and returns a session token
// for subsequent API calls. The endpoint mints credentials, so it demands
// the shared sync secret: without it anyone could claim any external_id and
// spend that user's credits.
func IdentitySync(store IdentityStore, issuer TokenIssuer, syncSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Fail closed on a missing server-side secret.
		if syncSecret == "" || !hmac.Equal([]byte(r.Header.Get(SyncSecretHeader)), []byte(syncSecret)) {
			log.Printf("IdentitySync: rejected request without a valid sync secret from %s", r.RemoteAddr)
			http.Error(w, "invalid sync credentials", http.StatusUnauthorized)
			return
		}

		var payload models.IdentitySyncPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("IdentitySync: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		payload.ExternalID = strings.TrimSpace(payload.ExternalID)
		if payload.ExternalID == "" {
			http.Error(w, "external_id is required", http.StatusBadRequest)
			return
		}

		user, err := store.UpsertUser(r.Context(), payload)
		if err != nil {
			log.Printf("IdentitySync: failed to upsert user %q: %v", payload.ExternalID, err)
			http.Error(w, "failed to persist user", http.StatusBadGateway)
			return
		}

		token, err := issuer.IssueToken(user.ExternalID, 0)
		if err != nil {
			log.Printf("IdentitySync: failed to issue session token for user %d: %v", user.ID, err)
			http.Error(w, "failed to issue session token", http.StatusInternalServerError)
			return
		}

		log.Printf("IdentitySync: synced user %d (%s)", user.ID, user.ExternalID)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"user":  user,
			"token": token,
		}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}
