package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/keywordpilot/backend/internal/models"
)

// CatalogReader lists the public product catalogs.
type CatalogReader interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	ListCreditPackages(ctx context.Context) ([]models.CreditPackage, error)
}

// ListPlans returns the purchasable plan catalog. Public: the pricing page
// renders before login.
func ListPlans(catalog CatalogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		plans, err := catalog.ListPlans(r.Context())
		if err != nil {
			log.Printf("ListPlans: %v", err)
			http.Error(w, "failed to load plans", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"plans": plans}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// ListCreditPackages returns the credit top-up catalog.
func ListCreditPackages(catalog CatalogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		packages, err := catalog.ListCreditPackages(r.Context())
		if err != nil {
			log.Printf("ListCreditPackages: %v", err)
			http.Error(w, "failed to load credit packages", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"packages": packages}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}
