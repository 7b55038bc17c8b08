package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/keywordpilot/backend/internal/auth"
	"github.com/keywordpilot/backend/internal/config"
	"github.com/keywordpilot/backend/internal/contentgen"
	"github.com/keywordpilot/backend/internal/credits"
	"github.com/keywordpilot/backend/internal/handlers"
	tracking "github.com/keywordpilot/backend/internal/middleware"
	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
	"github.com/keywordpilot/backend/internal/worker"
)

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
}

// New constructs the HTTP server and wires every route.
func New(
	cfg config.Config,
	st *store.Store,
	catalog *store.CatalogStore,
	jobStore *store.JobStore,
	cache *credits.ViewCache,
	resolver *credits.Resolver,
	engine *credits.Engine,
	ledger *credits.Ledger,
	sessions *auth.Sessions,
	keywords handlers.KeywordDataClient,
	content contentgen.Service,
	jobWorker *worker.Worker,
) *Server {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	// Session resolution runs outermost so the request tracker below sees
	// the user id. Feature endpoints stay reachable for anonymous callers;
	// the permission engine turns those into not_logged_in denials.
	router.Use(sessions.Optional)
	router.Use(tracking.NewRequestTracker(st).Middleware())

	gate := handlers.NewGate(engine, ledger)

	// Public surface.
	router.Get("/healthz", handlers.Health)
	router.Post("/api/auth/sync", handlers.IdentitySync(st, sessions, cfg.IdentitySyncSecret))
	router.Get("/api/plans", handlers.ListPlans(catalog))
	router.Get("/api/credit-packages", handlers.ListCreditPackages(catalog))

	// Billable feature endpoints, each bound to its fixed feature code.
	router.Post("/api/keywords/analyze", gate.Wrap(models.FeatureKeywordAnalysis, handlers.AnalyzeKeyword(keywords)))
	router.Post("/api/keywords/competitors", gate.Wrap(models.FeatureCompetitorAnalysis, handlers.CompetitorAnalysis(keywords)))
	router.Post("/api/keywords/serp", gate.Wrap(models.FeatureSerpAnalysis, handlers.SerpAnalysis(keywords)))
	router.Post("/api/content/outline", gate.Wrap(models.FeatureContentOutline, handlers.ContentOutline(content)))
	router.Post("/api/content/titles", gate.Wrap(models.FeatureTitleGeneration, handlers.TitleGeneration(content)))

	// Account surface: requires a session.
	router.Group(func(r chi.Router) {
		r.Use(sessions.Require)
		r.Post("/api/permission/check", handlers.CheckPermission(engine))
		r.Get("/api/credits/summary", handlers.CreditsSummary(resolver))
		r.Get("/api/credits/usage", handlers.UsageHistory(st))
		r.Post("/api/billing/purchase-plan", handlers.PurchasePlan(st, catalog, cache))
		r.Post("/api/billing/purchase-credits", handlers.PurchaseCredits(st, catalog, cache))
		r.Get("/api/billing/payment-history", handlers.PaymentHistory(st))
		r.Get("/api/metrics/user", handlers.UserMetrics(st))
		r.Get("/api/metrics/user/requests", handlers.UserRequests(st))
		r.Get("/api/jobs/stats", handlers.GetJobStats(jobStore))
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, worker: jobWorker}
}

// Start begins serving HTTP traffic and starts the worker.
func (s *Server) Start() error {
	if s.worker != nil {
		log.Println("[server] Starting job worker...")
		s.worker.Start(context.Background())
		s.worker.ScheduleMaintenance(context.Background())
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and worker.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.worker != nil {
		log.Println("[server] Shutting down job worker...")
		if err := s.worker.Stop(ctx); err != nil {
			log.Printf("[server] Worker shutdown error: %v", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
