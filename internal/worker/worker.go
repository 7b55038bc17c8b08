// Package worker processes the background maintenance queue: claim loop,
// retry scheduling with backoff, and graceful shutdown. Nothing in here
// runs on the request path.
package worker

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

// Handler processes one claimed job.
type Handler func(ctx context.Context, job *models.Job) error

// Handlers maps job types to their handlers.
type Handlers map[string]Handler

// Config holds worker configuration.
type Config struct {
	// MaxConcurrent is the number of concurrent job processors.
	MaxConcurrent int
	// PollInterval is the wait between polls when the queue is empty.
	PollInterval time.Duration
	// RetryBaseDelay is the base delay for exponential backoff.
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration
	// JobTimeout bounds a single handler invocation.
	JobTimeout time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight jobs.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the maintenance queue.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   2,
		PollInterval:    5 * time.Second,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   5 * time.Minute,
		JobTimeout:      2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Worker claims jobs from the queue and dispatches them to handlers.
type Worker struct {
	config   Config
	store    *store.JobStore
	handlers Handlers
	workerID string

	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex

	// activeJobs maps in-flight job ids to their cancel funcs so Stop can
	// release them back to pending.
	activeJobs map[int64]context.CancelFunc
}

// New creates a Worker. Zero config fields fall back to DefaultConfig.
func New(config Config, jobStore *store.JobStore, handlers Handlers) *Worker {
	defaults := DefaultConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.RetryMaxDelay <= 0 {
		config.RetryMaxDelay = defaults.RetryMaxDelay
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if handlers == nil {
		handlers = Handlers{}
	}

	return &Worker{
		config:     config,
		store:      jobStore,
		handlers:   handlers,
		workerID:   fmt.Sprintf("worker-%d-%d", time.Now().UnixNano(), rand.Intn(10000)),
		stopCh:     make(chan struct{}),
		activeJobs: make(map[int64]context.CancelFunc),
	}
}

// Start launches the processor goroutines.
func (w *Worker) Start(ctx context.Context) {
	log.Printf("[worker] Starting %s with %d processor(s)", w.workerID, w.config.MaxConcurrent)
	for i := 0; i < w.config.MaxConcurrent; i++ {
		w.wg.Add(1)
		go w.processorLoop(ctx, i)
	}
}

// Stop drains the worker: in-flight jobs are cancelled and released back to
// pending so another instance can pick them up.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	w.releaseActiveJobs(shutdownCtx)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[worker] %s stopped", w.workerID)
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("worker: shutdown timeout exceeded")
	}
}

// Enqueue validates and queues a job.
func (w *Worker) Enqueue(ctx context.Context, job *models.Job) error {
	if err := job.IsValid(); err != nil {
		return err
	}
	if err := w.store.Enqueue(ctx, job); err != nil {
		return err
	}
	log.Printf("[worker] Enqueued job %d (type: %s, priority: %s)", job.ID, job.JobType, job.Priority)
	return nil
}

func (w *Worker) processorLoop(ctx context.Context, id int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		job, err := w.store.ClaimNextJob(ctx, w.workerID)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[worker] Processor %d: claim job: %v", id, err)
			}
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.runJob(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(w.config.PollInterval):
	}
}

func (w *Worker) runJob(ctx context.Context, job *models.Job) {
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	w.mu.Lock()
	w.activeJobs[job.ID] = cancel
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.activeJobs, job.ID)
		w.mu.Unlock()
	}()

	log.Printf("[worker] Processing job %d (type: %s, attempt: %d/%d)",
		job.ID, job.JobType, job.Attempts, job.MaxAttempts)

	handler, ok := w.handlers[job.JobType]
	if !ok {
		w.fail(jobCtx, job, fmt.Errorf("no handler registered for job type %s", job.JobType))
		return
	}

	if err := handler(jobCtx, job); err != nil {
		w.fail(jobCtx, job, err)
		return
	}

	log.Printf("[worker] Job %d completed in %v", job.ID, time.Since(start))
	if err := w.store.MarkCompleted(jobCtx, job.ID); err != nil {
		log.Printf("[worker] Mark job %d completed: %v", job.ID, err)
	}
}

func (w *Worker) fail(ctx context.Context, job *models.Job, jobErr error) {
	log.Printf("[worker] Job %d failed: %v", job.ID, jobErr)

	if !job.CanRetry() {
		if err := w.store.MarkFailed(ctx, job.ID, jobErr.Error()); err != nil {
			log.Printf("[worker] Mark job %d failed: %v", job.ID, err)
		}
		return
	}

	delay := w.retryDelay(job.Attempts)
	log.Printf("[worker] Retrying job %d after %v (attempt %d/%d)", job.ID, delay, job.Attempts, job.MaxAttempts)
	if err := w.store.ScheduleRetry(ctx, job.ID, jobErr.Error(), time.Now().Add(delay)); err != nil {
		log.Printf("[worker] Schedule retry for job %d: %v", job.ID, err)
	}
}

// retryDelay computes exponential backoff with ±20% jitter.
func (w *Worker) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(w.config.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if capped := float64(w.config.RetryMaxDelay); delay > capped {
		delay = capped
	}
	return time.Duration(delay * (0.8 + 0.4*rand.Float64()))
}

func (w *Worker) releaseActiveJobs(ctx context.Context) {
	w.mu.Lock()
	ids := make([]int64, 0, len(w.activeJobs))
	for id, cancel := range w.activeJobs {
		ids = append(ids, id)
		cancel()
	}
	w.mu.Unlock()

	for _, id := range ids {
		if err := w.store.ReleaseJob(ctx, id); err != nil {
			log.Printf("[worker] Release job %d: %v", id, err)
		} else {
			log.Printf("[worker] Released job %d back to pending", id)
		}
	}
}
