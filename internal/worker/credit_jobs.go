package worker

import (
	"context"
	"log"
	"time"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

const (
	maintenanceInterval = time.Hour
	requestRetention    = 90 * 24 * time.Hour
	jobRetention        = 7 * 24 * time.Hour
)

// RegisterCreditJobs registers the subscription maintenance job handlers.
func RegisterCreditJobs(w *Worker, subs *store.Store, jobs *store.JobStore) {
	w.handlers[models.JobSubscriptionExpirySweep] = expirySweepHandler(subs)
	w.handlers[models.JobCreditRenewal] = creditRenewalHandler(subs)
	w.handlers[models.JobRequestLogCleanup] = cleanupHandler(subs, jobs)

	log.Println("[worker] Registered credit job handlers: subscription_expiry_sweep, credit_renewal, request_log_cleanup")
}

// expirySweepHandler retires active subscriptions whose period has ended.
// The resolver already expires rows lazily as users show up; the sweep
// catches the accounts nobody touched.
func expirySweepHandler(subs *store.Store) Handler {
	return func(ctx context.Context, job *models.Job) error {
		expired, err := subs.ExpireStaleSubscriptions(ctx, time.Now())
		if err != nil {
			return err
		}
		if expired > 0 {
			log.Printf("[worker] Expiry sweep retired %d subscription(s)", expired)
		}
		return nil
	}
}

// creditRenewalHandler rolls auto-renewing subscriptions into a new billing
// period with a fresh monthly credit grant.
func creditRenewalHandler(subs *store.Store) Handler {
	return func(ctx context.Context, job *models.Job) error {
		renewed, err := subs.RenewDueSubscriptions(ctx, time.Now())
		if err != nil {
			return err
		}
		if renewed > 0 {
			log.Printf("[worker] Renewed %d subscription(s)", renewed)
		}
		return nil
	}
}

// cleanupHandler prunes old request-tracking rows and finished queue rows.
func cleanupHandler(subs *store.Store, jobs *store.JobStore) Handler {
	return func(ctx context.Context, job *models.Job) error {
		requests, err := subs.DeleteOldRequests(ctx, requestRetention)
		if err != nil {
			return err
		}
		oldJobs, err := jobs.CleanupOldJobs(ctx, jobRetention)
		if err != nil {
			return err
		}
		log.Printf("[worker] Cleanup removed %d request row(s) and %d job row(s)", requests, oldJobs)
		return nil
	}
}

// ScheduleMaintenance enqueues the recurring maintenance jobs on a fixed
// interval until ctx is cancelled. Duplicate enqueues across restarts are
// harmless: each run is idempotent.
func (w *Worker) ScheduleMaintenance(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.enqueueMaintenance(ctx)
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.enqueueMaintenance(ctx)
			}
		}
	}()
}

func (w *Worker) enqueueMaintenance(ctx context.Context) {
	for _, jobType := range []string{
		models.JobSubscriptionExpirySweep,
		models.JobCreditRenewal,
		models.JobRequestLogCleanup,
	} {
		job := &models.Job{
			JobType:     jobType,
			Priority:    models.JobPriorityLow,
			MaxAttempts: 3,
		}
		if err := w.Enqueue(ctx, job); err != nil {
			log.Printf("[worker] Enqueue %s: %v", jobType, err)
		}
	}
}
