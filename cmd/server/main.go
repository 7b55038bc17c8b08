package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/keywordpilot/backend/internal/auth"
	"github.com/keywordpilot/backend/internal/config"
	"github.com/keywordpilot/backend/internal/contentgen"
	"github.com/keywordpilot/backend/internal/credits"
	"github.com/keywordpilot/backend/internal/httpserver"
	"github.com/keywordpilot/backend/internal/keyworddata"
	"github.com/keywordpilot/backend/internal/migrations"
	"github.com/keywordpilot/backend/internal/store"
	"github.com/keywordpilot/backend/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logDBTarget(cfg.DatabaseURL)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := runMigrationsWithDirtyFix(db); err != nil {
		log.Fatalf("failed to apply database migrations: %v", err)
	}

	st, err := store.New(db)
	if err != nil {
		log.Fatalf("failed to create store: %v", err)
	}
	catalog, err := store.NewCatalogStore(db)
	if err != nil {
		log.Fatalf("failed to create catalog store: %v", err)
	}
	jobStore, err := store.NewJobStore(db)
	if err != nil {
		log.Fatalf("failed to create job store: %v", err)
	}

	cache, err := credits.NewViewCache(cfg.CacheTTL)
	if err != nil {
		log.Fatalf("failed to create view cache: %v", err)
	}
	resolver := credits.NewResolver(st, catalog, cache)
	engine := credits.NewEngine(resolver, catalog, st, cache, cfg.LegacyPlanGating)
	ledger := credits.NewLedger(engine, st, cache)

	sessions := auth.NewSessions(cfg.SessionJWTSecret, st)
	keywords := keyworddata.NewClient(cfg.KeywordAPILogin, cfg.KeywordAPIPassword, cfg.KeywordAPIBaseURL)
	content := contentgen.NewGPTService(cfg.OpenAIAPIKey)

	jobWorker := worker.New(worker.DefaultConfig(), jobStore, worker.Handlers{})
	worker.RegisterCreditJobs(jobWorker, st, jobStore)

	srv := httpserver.New(cfg, st, catalog, jobStore, cache, resolver, engine, ledger, sessions, keywords, content, jobWorker)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("backend starting on %s", cfg.ServerAddress)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server exited with error: %v", err)
		os.Exit(1)
	}
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB) error {
	if err := migrations.Up(db); err != nil {
		log.Printf("migrations: error detected: %v", err)
		if strings.Contains(err.Error(), "Dirty database version") {
			log.Printf("migrations: dirty database detected, attempting to fix...")
			if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
				log.Printf("migrations: failed to fix dirty database: %v", fixErr)
				return err
			}
			return migrations.Up(db)
		}
		return err
	}
	return nil
}

func logDBTarget(dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Printf("db: configured (dsn parse error: %v)", err)
		return
	}
	log.Printf("db: host=%s db=%s", u.Hostname(), strings.TrimPrefix(u.Path, "/"))
}
