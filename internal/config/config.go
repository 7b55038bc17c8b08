package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18210".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql. Required.
	DatabaseURL string

	// SessionJWTSecret is the HMAC secret shared with the identity provider,
	// used to validate session tokens. Required.
	SessionJWTSecret string

	// IdentitySyncSecret authenticates the identity provider's calls to the
	// sync endpoint. Only callers presenting it can upsert users and mint
	// session tokens. Required.
	IdentitySyncSecret string

	// OpenAIAPIKey authenticates against the content-generation provider.
	// Optional: when empty, content endpoints report the provider as
	// unconfigured instead of failing startup.
	OpenAIAPIKey string

	// KeywordAPILogin and KeywordAPIPassword are the basic-auth credentials
	// for the keyword-data provider.
	KeywordAPILogin    string
	KeywordAPIPassword string

	// KeywordAPIBaseURL overrides the keyword-data provider endpoint,
	// mainly for tests.
	KeywordAPIBaseURL string

	// CacheTTL bounds how long catalog and subscription views may be served
	// from the in-process cache. The debit path never reads the cache.
	CacheTTL time.Duration

	// LegacyPlanGating enables the min-plan-level fallback for features
	// that have no plan_permissions rows yet. Off by default; the
	// allow-list is the source of truth.
	LegacyPlanGating bool
}

const (
	defaultServerAddress = ":18210"
	defaultCacheTTL      = 5 * time.Minute

	envServerAddress      = "BACKEND_ADDR"
	envDatabaseURL        = "DATABASE_URL"
	envSessionJWTSecret   = "SESSION_JWT_SECRET"
	envIdentitySyncSecret = "IDENTITY_SYNC_SECRET"
	envOpenAIAPIKey       = "OPENAI_API_KEY"
	envKeywordAPILogin    = "KEYWORD_API_LOGIN"
	envKeywordAPIPassword = "KEYWORD_API_PASSWORD"
	envKeywordAPIBaseURL  = "KEYWORD_API_BASE_URL"
	envCacheTTLMinutes    = "CACHE_TTL_MINUTES"
	envLegacyPlanGating   = "LEGACY_PLAN_GATING"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:      firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:        os.Getenv(envDatabaseURL),
		SessionJWTSecret:   os.Getenv(envSessionJWTSecret),
		IdentitySyncSecret: os.Getenv(envIdentitySyncSecret),
		OpenAIAPIKey:       os.Getenv(envOpenAIAPIKey),
		KeywordAPILogin:    os.Getenv(envKeywordAPILogin),
		KeywordAPIPassword: os.Getenv(envKeywordAPIPassword),
		KeywordAPIBaseURL:  os.Getenv(envKeywordAPIBaseURL),
		CacheTTL:           defaultCacheTTL,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}
	if cfg.SessionJWTSecret == "" {
		return Config{}, fmt.Errorf("%s is required", envSessionJWTSecret)
	}
	if cfg.IdentitySyncSecret == "" {
		return Config{}, fmt.Errorf("%s is required", envIdentitySyncSecret)
	}

	if raw := os.Getenv(envCacheTTLMinutes); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", envCacheTTLMinutes, raw)
		}
		cfg.CacheTTL = time.Duration(minutes) * time.Minute
	}

	if raw := os.Getenv(envLegacyPlanGating); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %q", envLegacyPlanGating, raw)
		}
		cfg.LegacyPlanGating = enabled
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
