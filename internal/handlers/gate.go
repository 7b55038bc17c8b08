package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/keywordpilot/backend/internal/auth"
	"github.com/keywordpilot/backend/internal/credits"
	"github.com/keywordpilot/backend/internal/models"
)

// PermissionChecker evaluates whether a user may invoke a feature.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID int64, featureCode string) models.PermissionResult
}

// CreditDebiter charges a user for one feature invocation.
type CreditDebiter interface {
	Debit(ctx context.Context, userID int64, featureCode, description string) (*models.UsageLogEntry, error)
}

// FeatureHandler is the business logic behind a gated endpoint, split so the
// gate can validate before it charges. Parse decodes and validates the raw
// request body and runs before the debit; a Parse failure is a 400 and costs
// nothing. Run executes the feature with Parse's result after the debit.
type FeatureHandler struct {
	Parse func(body []byte) (any, error)
	Run   func(ctx context.Context, user *models.User, req any) (any, error)
}

// Gate wraps billable feature endpoints: it checks permission, validates the
// payload, debits credits, then runs the business handler. Credits are spent
// before execution; a Run failure after the debit is logged but not
// refunded.
type Gate struct {
	engine PermissionChecker
	ledger CreditDebiter
}

func NewGate(engine PermissionChecker, ledger CreditDebiter) *Gate {
	return &Gate{engine: engine, ledger: ledger}
}

// Wrap returns an HTTP handler that gates the given business handler behind
// the fixed feature code.
func (g *Gate) Wrap(featureCode string, handler FeatureHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("Gate: read body for %s: %v", featureCode, err)
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		user, _ := auth.UserFromContext(r.Context())
		userID := auth.UserIDFromContext(r.Context())

		result := g.engine.CheckPermission(r.Context(), userID, featureCode)
		if !result.HasPermission {
			writeDenial(w, result)
			return
		}

		parsed, err := handler.Parse(body)
		if err != nil {
			var badReq *badRequestError
			if errors.As(err, &badReq) {
				http.Error(w, badReq.msg, http.StatusBadRequest)
				return
			}
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		entry, err := g.ledger.Debit(r.Context(), userID, featureCode, r.URL.Path)
		if err != nil {
			if denied, ok := credits.Denial(err); ok {
				writeDenial(w, denied)
				return
			}
			log.Printf("Gate: debit for user %d feature %s: %v", userID, featureCode, err)
			http.Error(w, "failed to record usage", http.StatusInternalServerError)
			return
		}

		output, err := handler.Run(r.Context(), user, parsed)
		if err != nil {
			// Spend-first: the debit above stands even though the feature
			// failed. Refunds would reopen the race the conditional update
			// closed.
			log.Printf("Gate: %s handler failed after debit for user %d: %v", featureCode, userID, err)
			http.Error(w, "feature temporarily unavailable", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"data":              output,
			"credits_used":      entry.CreditsUsed,
			"remaining_credits": entry.RemainingCredits,
		}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// writeDenial renders a failed permission check. Anonymous callers get 401,
// everything else 403; the body carries the machine-readable reason and its
// user-facing message.
func writeDenial(w http.ResponseWriter, result models.PermissionResult) {
	status := http.StatusForbidden
	if result.Reason == models.ReasonNotLoggedIn {
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
