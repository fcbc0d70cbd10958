package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Database.MaxOpenConns != 1 {
		t.Errorf("expected max_open_conns 1, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Renderer.BreakerResetTimeout != 30*time.Second {
		t.Errorf("expected breaker reset timeout 30s, got %v", cfg.Renderer.BreakerResetTimeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  addr: ":9090"
  corsorigin: "http://example.com"
database:
  maxopenconns: 20
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Database.MaxOpenConns != 20 {
		t.Errorf("expected max_open_conns 20, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Content.Dir != "content" {
		t.Errorf("expected default content dir, got %s", cfg.Content.Dir)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("AGBLOGGER_ADDR", ":7070")
	t.Setenv("DATABASE_URL", "agblogger-test.db")
	t.Setenv("AGBLOGGER_DB_MAX_OPEN_CONNS", "25")
	t.Setenv("AGBLOGGER_LOG_LEVEL", "warn")
	t.Setenv("AGBLOGGER_RENDERER_BREAKER_RESET_TIMEOUT", "1m")

	loadEnv(&cfg)

	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected addr :7070, got %s", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "agblogger-test.db" {
		t.Errorf("expected test DSN, got %s", cfg.Database.DSN)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected max_open_conns 25, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Renderer.BreakerResetTimeout != time.Minute {
		t.Errorf("expected breaker reset timeout 1m, got %v", cfg.Renderer.BreakerResetTimeout)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty addr",
			modify: func(c *Config) { c.Server.Addr = "" },
			errMsg: "server.addr is required",
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.Database.DSN = "" },
			errMsg: "database.dsn is required",
		},
		{
			name:   "empty content dir",
			modify: func(c *Config) { c.Content.Dir = "" },
			errMsg: "content.dir is required",
		},
		{
			name:   "weak bcrypt cost",
			modify: func(c *Config) { c.Auth.BcryptCost = 4 },
			errMsg: "auth.bcrypt_cost must be >= 10",
		},
		{
			name:   "zero rate limit max_failures",
			modify: func(c *Config) { c.RateLimit.MaxFailures = 0 },
			errMsg: "rate_limit.max_failures must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestValidateProductionRequiresSecretAndTrustedHosts(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Production = true

	if err := validate(&cfg); err == nil || err.Error() != "SECRET_KEY is required in production" {
		t.Fatalf("expected SECRET_KEY error, got %v", err)
	}

	cfg.Auth.SecretKey = "s3cret"
	if err := validate(&cfg); err == nil || err.Error() != "TRUSTED_HOSTS is required in production" {
		t.Fatalf("expected TRUSTED_HOSTS error, got %v", err)
	}

	cfg.Server.TrustedHosts = []string{"blog.example.com"}
	if err := validate(&cfg); err != nil {
		t.Errorf("expected valid production config, got %v", err)
	}
}
