package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/keywordpilot/backend/internal/auth"
	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

// BillingStore defines the behaviour required from the storage client
// backing the billing handlers.
type BillingStore interface {
	ApplyPlanPurchase(ctx context.Context, userID int64, plan *models.Plan) (*models.Subscription, error)
	AddCredits(ctx context.Context, userID int64, pkg *models.CreditPackage) (*models.Subscription, error)
	GetPaymentHistory(ctx context.Context, userID int64) ([]models.Payment, error)
}

// BillingCatalog looks up the purchasable products.
type BillingCatalog interface {
	GetPlan(ctx context.Context, id models.PlanID) (*models.Plan, error)
	GetCreditPackage(ctx context.Context, code string) (*models.CreditPackage, error)
}

// CacheInvalidator drops a user's cached subscription view after a
// purchase changes it.
type CacheInvalidator interface {
	InvalidateUser(userID int64)
}

type purchasePlanPayload struct {
	PlanID string `json:"plan_id"`
}

type purchaseCreditsPayload struct {
	PackageCode string `json:"package_code"`
}

// PurchasePlan switches the authenticated user to a paid plan: the active
// subscription row is updated in place (or created), the plan's monthly
// credits are granted, the billing period resets, and a payment row is
// recorded.
func PurchasePlan(billing BillingStore, catalog BillingCatalog, cache CacheInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload purchasePlanPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("PurchasePlan: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		planID := models.PlanID(strings.TrimSpace(payload.PlanID))
		if planID == "" {
			http.Error(w, "plan_id is required", http.StatusBadRequest)
			return
		}
		if !planID.IsPaid() {
			http.Error(w, "plan is not purchasable", http.StatusBadRequest)
			return
		}

		plan, err := catalog.GetPlan(r.Context(), planID)
		if err != nil {
			if errors.Is(err, store.ErrPlanNotFound) {
				http.Error(w, "unknown plan", http.StatusNotFound)
				return
			}
			log.Printf("PurchasePlan: plan lookup for %q: %v", planID, err)
			http.Error(w, "failed to load plan", http.StatusInternalServerError)
			return
		}
		if !plan.IsActive {
			http.Error(w, "plan is not purchasable", http.StatusBadRequest)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		sub, err := billing.ApplyPlanPurchase(r.Context(), userID, plan)
		if err != nil {
			log.Printf("PurchasePlan: apply purchase of %q for user %d: %v", planID, userID, err)
			http.Error(w, "failed to apply purchase", http.StatusInternalServerError)
			return
		}
		cache.InvalidateUser(userID)

		log.Printf("PurchasePlan: user %d switched to plan %s with %d credits", userID, sub.PlanID, sub.CurrentCredits)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"subscription": sub}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// PurchaseCredits tops up the authenticated user's balance from a credit
// package (base credits plus bonus) and records a payment row. The user
// must already have an active subscription; top-ups never change the plan.
func PurchaseCredits(billing BillingStore, catalog BillingCatalog, cache CacheInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload purchaseCreditsPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("PurchaseCredits: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		code := strings.TrimSpace(payload.PackageCode)
		if code == "" {
			http.Error(w, "package_code is required", http.StatusBadRequest)
			return
		}

		pkg, err := catalog.GetCreditPackage(r.Context(), code)
		if err != nil {
			if errors.Is(err, store.ErrPackageNotFound) {
				http.Error(w, "unknown credit package", http.StatusNotFound)
				return
			}
			log.Printf("PurchaseCredits: package lookup for %q: %v", code, err)
			http.Error(w, "failed to load credit package", http.StatusInternalServerError)
			return
		}
		if !pkg.IsActive {
			http.Error(w, "credit package is not purchasable", http.StatusBadRequest)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		sub, err := billing.AddCredits(r.Context(), userID, pkg)
		if err != nil {
			if errors.Is(err, store.ErrNoActiveSubscription) {
				http.Error(w, "no active subscription to credit", http.StatusConflict)
				return
			}
			log.Printf("PurchaseCredits: add credits from %q for user %d: %v", code, userID, err)
			http.Error(w, "failed to add credits", http.StatusInternalServerError)
			return
		}
		cache.InvalidateUser(userID)

		log.Printf("PurchaseCredits: user %d bought %s, balance now %d", userID, pkg.Code, sub.CurrentCredits)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"subscription":  sub,
			"credits_added": pkg.CreditsAmount + pkg.BonusCredits,
			"package_code":  pkg.Code,
			"price_cents":   pkg.PriceCents,
		}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// PaymentHistory returns the authenticated user's purchase audit rows.
func PaymentHistory(billing BillingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		payments, err := billing.GetPaymentHistory(r.Context(), userID)
		if err != nil {
			log.Printf("PaymentHistory: list payments for user %d: %v", userID, err)
			http.Error(w, "failed to load payment history", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"payments": payments}); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}
