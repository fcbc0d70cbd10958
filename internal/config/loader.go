package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agblogger.yaml"

// CLIFlags holds command-line flag values. Nil pointers indicate unset
// flags that should not override the config. Use ParseFlags to populate
// this struct.
type CLIFlags struct {
	ConfigPath *string
	Addr       *string
	LogLevel   *string
	DSN        *string
	ContentDir *string
}

// ParseFlags parses command-line arguments into CLIFlags. Call this
// before Load/LoadWithCLI. Passing nil args parses os.Args[1:].
func ParseFlags(args []string) (CLIFlags, error) {
	var flags CLIFlags

	fs := flag.NewFlagSet("agblogger", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	addr := fs.String("addr", "", "HTTP listen address")
	fs.StringVar(addr, "a", "", "HTTP listen address (shorthand)")
	logLevel := fs.String("log-level", "", "logging level (debug, info, warn, error)")
	dsn := fs.String("dsn", "", "SQLite data source")
	contentDir := fs.String("content-dir", "", "content directory")

	if err := fs.Parse(args); err != nil {
		return flags, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "addr", "a":
			flags.Addr = addr
		case "log-level":
			flags.LogLevel = logLevel
		case "dsn":
			flags.DSN = dsn
		case "content-dir":
			flags.ContentDir = contentDir
		}
	})

	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadWithCLI returns a Config using the full hierarchy: defaults <
// YAML < ENV < CLI flags. The YAML path can be overridden via
// CLIFlags.ConfigPath.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overlays CLI flag values onto cfg. Only non-nil flags override.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Addr != nil {
		cfg.Server.Addr = *flags.Addr
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Database.DSN = *flags.DSN
	}
	if flags.ContentDir != nil {
		cfg.Content.Dir = *flags.ContentDir
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg. Returns nil
// if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg (spec §6 "Environment").
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "AGBLOGGER_ADDR")
	setString(&cfg.Server.CORSOrigin, "AGBLOGGER_CORS_ORIGIN")
	setBool(&cfg.Server.Production, "AGBLOGGER_PRODUCTION")
	if v := os.Getenv("TRUSTED_HOSTS"); v != "" {
		cfg.Server.TrustedHosts = strings.Split(v, ",")
	}

	setString(&cfg.Database.DSN, "DATABASE_URL")
	setInt(&cfg.Database.MaxOpenConns, "AGBLOGGER_DB_MAX_OPEN_CONNS")
	setDuration(&cfg.Database.BusyTimeout, "AGBLOGGER_DB_BUSY_TIMEOUT")

	setString(&cfg.Content.Dir, "CONTENT_DIR")
	setInt64(&cfg.Content.MaxMarkdownBytes, "AGBLOGGER_MAX_MARKDOWN_BYTES")

	setString(&cfg.Git.AuthorName, "AGBLOGGER_GIT_AUTHOR_NAME")
	setString(&cfg.Git.AuthorEmail, "AGBLOGGER_GIT_AUTHOR_EMAIL")
	setDuration(&cfg.Git.CommitTimeout, "AGBLOGGER_GIT_COMMIT_TIMEOUT")
	setInt64(&cfg.Git.PoolLimit, "AGBLOGGER_GIT_POOL_LIMIT")

	setInt64(&cfg.Renderer.PoolSize, "RENDERER_POOL_SIZE")
	setDuration(&cfg.Renderer.Timeout, "RENDERER_TIMEOUT")
	setInt(&cfg.Renderer.MaxRestarts, "RENDERER_MAX_RESTARTS")
	setDuration(&cfg.Renderer.StartupTimeout, "AGBLOGGER_RENDERER_STARTUP_TIMEOUT")
	setInt(&cfg.Renderer.BreakerMaxFailures, "AGBLOGGER_RENDERER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Renderer.BreakerResetTimeout, "AGBLOGGER_RENDERER_BREAKER_RESET_TIMEOUT")
	setInt64(&cfg.Renderer.MaxInputBytes, "AGBLOGGER_RENDERER_MAX_INPUT_BYTES")

	setBool(&cfg.Sanitizer.AllowDataImages, "AGBLOGGER_SANITIZER_ALLOW_DATA_IMAGES")

	setString(&cfg.Auth.SecretKey, "SECRET_KEY")
	setDuration(&cfg.Auth.AccessTokenTTL, "AGBLOGGER_ACCESS_TOKEN_TTL")
	setDuration(&cfg.Auth.RefreshTokenTTL, "AGBLOGGER_REFRESH_TOKEN_TTL")
	setInt(&cfg.Auth.BcryptCost, "AGBLOGGER_BCRYPT_COST")
	setString(&cfg.Auth.AdminUsername, "ADMIN_USERNAME")
	setString(&cfg.Auth.AdminPassword, "ADMIN_PASSWORD")
	setString(&cfg.Auth.AdminEmail, "ADMIN_EMAIL")
	setBool(&cfg.Auth.RegistrationEnabled, "AGBLOGGER_REGISTRATION_ENABLED")
	setInt(&cfg.Auth.MinPasswordStrength, "AGBLOGGER_MIN_PASSWORD_STRENGTH")
	setBool(&cfg.Auth.SecureCookies, "AGBLOGGER_SECURE_COOKIES")

	setInt(&cfg.RateLimit.MaxFailures, "AGBLOGGER_RATE_MAX_FAILURES")
	setDuration(&cfg.RateLimit.Window, "AGBLOGGER_RATE_WINDOW")
	setDuration(&cfg.RateLimit.CleanupTick, "AGBLOGGER_RATE_CLEANUP_TICK")

	setInt64(&cfg.Sync.MaxUploadBytes, "AGBLOGGER_SYNC_MAX_UPLOAD_BYTES")

	setInt64(&cfg.Cache.MaxCostBytes, "AGBLOGGER_CACHE_MAX_COST_BYTES")
	setDuration(&cfg.Cache.TTL, "AGBLOGGER_CACHE_TTL")

	setString(&cfg.Logging.Level, "AGBLOGGER_LOG_LEVEL")
	setBool(&cfg.Logging.Async, "AGBLOGGER_LOG_ASYNC")

	setBool(&cfg.OTEL.Enabled, "AGBLOGGER_OTEL_ENABLED")
	setString(&cfg.OTEL.ServiceName, "AGBLOGGER_OTEL_SERVICE_NAME")
	setString(&cfg.OTEL.Endpoint, "AGBLOGGER_OTEL_ENDPOINT")
	setFloat64(&cfg.OTEL.SampleRatio, "AGBLOGGER_OTEL_SAMPLE_RATIO")

	setString(&cfg.Site.Timezone, "AGBLOGGER_SITE_TIMEZONE")
	setString(&cfg.Site.DefaultAuthor, "AGBLOGGER_SITE_DEFAULT_AUTHOR")

	setString(&cfg.CrossPost.SlackWebhookURL, "CROSSPOST_SLACK_WEBHOOK_URL")
	setString(&cfg.CrossPost.DiscordWebhookURL, "CROSSPOST_DISCORD_WEBHOOK_URL")

	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.NATS.IdempotencyTTL, "AGBLOGGER_NATS_IDEMPOTENCY_TTL")
	setDuration(&cfg.NATS.RenderCacheTTL, "AGBLOGGER_NATS_RENDER_CACHE_TTL")
}

// validate checks that required fields are set and security constraints
// are met, erring on the side of refusing to start misconfigured rather
// than silently running insecurely (spec §6 "required in production").
func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if cfg.Content.Dir == "" {
		return errors.New("content.dir is required")
	}
	if cfg.Auth.BcryptCost < 10 {
		return errors.New("auth.bcrypt_cost must be >= 10")
	}
	if cfg.RateLimit.MaxFailures < 1 {
		return errors.New("rate_limit.max_failures must be >= 1")
	}

	if cfg.Server.Production {
		if cfg.Auth.SecretKey == "" {
			return errors.New("SECRET_KEY is required in production")
		}
		if len(cfg.Server.TrustedHosts) == 0 {
			return errors.New("TRUSTED_HOSTS is required in production")
		}
	}

	if cfg.Auth.SecretKey == "" {
		slog.Warn("SECRET_KEY is unset; generating an ephemeral key for this process (sessions will not survive a restart)")
	}
	if cfg.Auth.AdminPassword == "changeme123" || cfg.Auth.AdminPassword == "Changeme123" {
		slog.Warn("ADMIN_PASSWORD is set to a well-known default; change it before production use")
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
