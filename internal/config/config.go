// Package config provides hierarchical configuration loading for
// AgBlogger. Precedence: defaults < YAML file < environment variables <
// CLI flags (spec §6 "Environment").
package config

import (
	"sync"
	"time"
)

// Server holds HTTP listener settings.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedHosts    []string
	CORSOrigin      string
	Production      bool
}

// Database holds the SQLite cache connection settings.
type Database struct {
	// DSN is a modernc.org/sqlite data source (file path or
	// "file:...?cache=shared&_pragma=busy_timeout(5000)").
	DSN             string
	MaxOpenConns    int
	BusyTimeout     time.Duration
	MigrationsTable string
}

// Content holds content-store settings (spec §4.4).
type Content struct {
	Dir              string
	MaxMarkdownBytes int64
}

// Git holds git-versioning settings (spec §4.7).
type Git struct {
	AuthorName    string
	AuthorEmail   string
	CommitTimeout time.Duration
	PoolLimit     int64
}

// Renderer holds subprocess pool tuning (spec §4.6, §6
// RENDERER_POOL_SIZE/RENDERER_TIMEOUT/RENDERER_MAX_RESTARTS).
type Renderer struct {
	PoolSize            int64
	Timeout             time.Duration
	MaxRestarts         int
	StartupTimeout      time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	// MaxInputBytes bounds the markdown document size accepted for
	// rendering (spec §4.6 "input over size limit ⇒ InputTooLarge").
	MaxInputBytes int64
}

// Sanitizer holds HTML sanitizer tuning (spec §4.5).
type Sanitizer struct {
	AllowDataImages bool
}

// Auth holds authentication/session settings (spec §4.11).
type Auth struct {
	// SecretKey signs access tokens and derives the credential
	// encryption key (spec §6 SECRET_KEY); required in production.
	SecretKey           string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	BcryptCost          int
	AdminUsername       string
	AdminPassword       string //nolint:gosec // config field, not a hardcoded secret
	AdminEmail          string
	RegistrationEnabled bool
	MinPasswordStrength int // zxcvbn score floor, 0-4
	SecureCookies       bool
}

// RateLimit holds sliding-window limiter settings (spec §4.11).
type RateLimit struct {
	MaxFailures int
	Window      time.Duration
	CleanupTick time.Duration
}

// Sync holds bidirectional sync engine tuning (spec §4.10).
type Sync struct {
	MaxUploadBytes int64
}

// Cache holds the in-process render-HTML cache tuning (reusing the
// teacher's ristretto/tiered adapters).
type Cache struct {
	MaxCostBytes int64
	TTL          time.Duration
}

// Logging holds structured logging settings.
type Logging struct {
	Level   string
	Async   bool
	Service string
}

// OTEL holds OpenTelemetry exporter settings, ambient across every
// component.
type OTEL struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRatio float64
}

// Site holds defaults applied at front-matter write time (spec §4.2, §6).
type Site struct {
	Timezone      string
	DefaultAuthor string
}

// NATS holds the optional JetStream connection backing sync-upload
// idempotency and the L2 render-HTML cache (spec §4.9, §4.10). A blank
// URL disables both: sync uploads are no longer deduplicated by
// Idempotency-Key and the render cache stays in-process only.
type NATS struct {
	URL            string
	IdempotencyTTL time.Duration
	RenderCacheTTL time.Duration
}

// CrossPost holds webhook URLs for the notifier platforms registered
// against the cross-post dispatcher (spec §4.12, §9). A blank URL
// leaves that platform unregistered; ConnectSocialAccount still
// encrypts and stores credentials for it, but Dispatcher.Post fails
// with ErrBadRequest until the operator configures a webhook.
type CrossPost struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
}

// Config is the fully assembled AgBlogger configuration.
type Config struct {
	Server    Server
	Database  Database
	Content   Content
	Git       Git
	Renderer  Renderer
	Sanitizer Sanitizer
	Auth      Auth
	RateLimit RateLimit
	Sync      Sync
	Cache     Cache
	Logging   Logging
	OTEL      OTEL
	Site      Site
	CrossPost CrossPost
	NATS      NATS
}

// Defaults returns a Config populated with conservative defaults;
// callers layer a YAML file, environment, and CLI flags on top.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigin:      "*",
		},
		Database: Database{
			DSN:             "agblogger.db",
			MaxOpenConns:    1,
			BusyTimeout:     5 * time.Second,
			MigrationsTable: "goose_db_version",
		},
		Content: Content{
			Dir:              "content",
			MaxMarkdownBytes: 10 << 20,
		},
		Git: Git{
			AuthorName:    "AgBlogger",
			AuthorEmail:   "agblogger@localhost",
			CommitTimeout: 10 * time.Second,
			PoolLimit:     4,
		},
		Renderer: Renderer{
			PoolSize:            4,
			Timeout:             10 * time.Second,
			MaxRestarts:         3,
			StartupTimeout:      5 * time.Second,
			BreakerMaxFailures:  3,
			BreakerResetTimeout: 30 * time.Second,
			MaxInputBytes:       10 << 20,
		},
		Sanitizer: Sanitizer{
			AllowDataImages: false,
		},
		Auth: Auth{
			AccessTokenTTL:      15 * time.Minute,
			RefreshTokenTTL:     7 * 24 * time.Hour,
			BcryptCost:          12,
			RegistrationEnabled: false,
			MinPasswordStrength: 2,
			SecureCookies:       true,
		},
		RateLimit: RateLimit{
			MaxFailures: 5,
			Window:      15 * time.Minute,
			CleanupTick: 5 * time.Minute,
		},
		Sync: Sync{
			MaxUploadBytes: 10 << 20,
		},
		Cache: Cache{
			MaxCostBytes: 64 << 20,
			TTL:          30 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "agblogger",
		},
		OTEL: OTEL{
			ServiceName: "agblogger",
			SampleRatio: 0.1,
		},
		Site: Site{
			Timezone:      "UTC",
			DefaultAuthor: "admin",
		},
		NATS: NATS{
			IdempotencyTTL: 24 * time.Hour,
			RenderCacheTTL: 30 * time.Minute,
		},
	}
}

// ConfigHolder provides thread-safe access to a Config with hot-reload
// support. Services that hold pointers into the Config (e.g.
// &cfg.Renderer) will see updated values after a reload because fields
// are swapped in-place.
type ConfigHolder struct {
	mu  sync.RWMutex
	cfg Config
}

// NewHolder wraps cfg in a ConfigHolder.
func NewHolder(cfg Config) *ConfigHolder {
	return &ConfigHolder{cfg: cfg}
}

// Get returns a copy of the current configuration snapshot.
func (h *ConfigHolder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Set replaces the held configuration.
func (h *ConfigHolder) Set(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}
