package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agblogger/agblogger/internal/adapter/discord"
	cfhttp "github.com/agblogger/agblogger/internal/adapter/http"
	"github.com/agblogger/agblogger/internal/adapter/nats"
	"github.com/agblogger/agblogger/internal/adapter/natskv"
	"github.com/agblogger/agblogger/internal/adapter/render"
	"github.com/agblogger/agblogger/internal/adapter/ristretto"
	"github.com/agblogger/agblogger/internal/adapter/slack"
	"github.com/agblogger/agblogger/internal/adapter/sqlite"
	"github.com/agblogger/agblogger/internal/adapter/tiered"
	"github.com/agblogger/agblogger/internal/cachebuild"
	"github.com/agblogger/agblogger/internal/config"
	"github.com/agblogger/agblogger/internal/contentstore"
	"github.com/agblogger/agblogger/internal/crosspost"
	"github.com/agblogger/agblogger/internal/datetimefmt"
	"github.com/agblogger/agblogger/internal/git"
	"github.com/agblogger/agblogger/internal/gitrepo"
	"github.com/agblogger/agblogger/internal/labelservice"
	"github.com/agblogger/agblogger/internal/logger"
	"github.com/agblogger/agblogger/internal/middleware"
	cacheport "github.com/agblogger/agblogger/internal/port/cache"
	"github.com/agblogger/agblogger/internal/postservice"
	"github.com/agblogger/agblogger/internal/rendercache"
	"github.com/agblogger/agblogger/internal/renderengine"
	"github.com/agblogger/agblogger/internal/sanitize"
	"github.com/agblogger/agblogger/internal/secrets"
	"github.com/agblogger/agblogger/internal/service"
	"github.com/agblogger/agblogger/internal/syncengine"
)

func main() {
	// render-engine is spawned as a subprocess of this same binary
	// (internal/adapter/render.Client.spawnLocked); intercept it before
	// any of the parent's config/DB/git setup runs.
	if len(os.Args) > 1 && os.Args[1] == "render-engine" {
		if err := renderengine.RunSubcommand(); err != nil {
			slog.Error("render-engine fatal", "error", err)
			os.Exit(1)
		}
		return
	}

	// Temporary bootstrap logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	appLogger, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(appLogger)
	defer logCloser.Close()

	slog.Info("config loaded",
		"addr", cfg.Server.Addr,
		"content_dir", cfg.Content.Dir,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Secrets ---
	vault, err := secrets.NewVault(secrets.EnvLoader("SECRET_KEY"))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// --- Database (SQLite cache, spec §4.9) ---
	db, err := sqlite.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	store := sqlite.NewStore(db)
	slog.Info("sqlite cache ready", "dsn", cfg.Database.DSN)

	// --- Content store + git versioning (spec §4.4, §4.7) ---
	contentDir, err := filepath.Abs(cfg.Content.Dir)
	if err != nil {
		return fmt.Errorf("resolve content dir: %w", err)
	}
	content := contentstore.New(contentDir, cfg.Content.MaxMarkdownBytes)

	gitPool := git.NewPool(int(cfg.Git.PoolLimit))
	repo := gitrepo.New(contentDir, cfg.Git.AuthorName, cfg.Git.AuthorEmail, cfg.Git.CommitTimeout, gitPool)
	if err := repo.InitIfAbsent(ctx); err != nil {
		return fmt.Errorf("git init: %w", err)
	}

	labelsPath := filepath.Join(contentDir, "labels.toml")
	site := datetimefmt.NewSite(cfg.Site.Timezone)

	cache := cachebuild.New(content, store, site, cfg.Site.DefaultAuthor, labelsPath)
	if err := cache.RebuildCache(ctx); err != nil {
		return fmt.Errorf("initial cache rebuild: %w", err)
	}
	labels := labelservice.New(labelsPath, store, cache)
	syncEngine := syncengine.New(content, repo, store, cache, site)

	// --- Render pipeline (spec §4.5, §4.6) ---
	renderClient := render.New(render.Config{
		Timeout:             cfg.Renderer.Timeout,
		MaxRestarts:         cfg.Renderer.MaxRestarts,
		StartupTimeout:      cfg.Renderer.StartupTimeout,
		Concurrency:         cfg.Renderer.PoolSize,
		BreakerMaxFailures:  cfg.Renderer.BreakerMaxFailures,
		BreakerResetTimeout: cfg.Renderer.BreakerResetTimeout,
		MaxInputBytes:       cfg.Renderer.MaxInputBytes,
	})
	l1, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("render cache: %w", err)
	}

	// NATS JetStream is optional: when configured it backs sync-upload
	// idempotency and promotes the render cache to a shared L2 tier so
	// a second app instance reuses already-rendered HTML (spec §4.9,
	// §4.10). Left unconfigured, both fall back to in-process-only
	// behavior.
	var natsConn *nats.Conn
	var idempotencyMW func(http.Handler) http.Handler
	renderCacheBackend := cacheport.Cache(l1)
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}

		idempotencyKV, err := natsConn.EnsureKV(ctx, "agblogger-sync-idempotency", cfg.NATS.IdempotencyTTL)
		if err != nil {
			return fmt.Errorf("nats idempotency bucket: %w", err)
		}
		idempotencyMW = middleware.Idempotency(idempotencyKV)

		renderCacheKV, err := natsConn.EnsureKV(ctx, "agblogger-render-cache", cfg.NATS.RenderCacheTTL)
		if err != nil {
			return fmt.Errorf("nats render cache bucket: %w", err)
		}
		renderCacheBackend = tiered.New(l1, natskv.New(renderCacheKV), cfg.Cache.TTL)
	}

	renderCache := rendercache.New(renderClient, renderCacheBackend, cfg.Cache.TTL)
	sanitizer := sanitize.New(cfg.Sanitizer.AllowDataImages)

	posts := postservice.New(content, repo, store, cache, renderCache, sanitizer, site, cfg.Site.DefaultAuthor)

	// --- Auth (spec §4.11) ---
	authSvc := service.NewAuthService(store, &cfg.Auth)
	if err := authSvc.BootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	authSvc.StartTokenCleanup(cleanupCtx, cfg.RateLimit.CleanupTick)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.MaxFailures, cfg.RateLimit.Window)
	stopRateLimitCleanup := rateLimiter.StartCleanup(cfg.RateLimit.CleanupTick)
	defer stopRateLimitCleanup()

	// --- Cross-posting (spec §4.12, §9). A platform without a
	// configured webhook is left unregistered: stored credentials for
	// it still encrypt/decrypt, but Dispatcher.Post 400s until the
	// operator sets the URL.
	cipher, err := crosspost.NewCredentialCipher(vault)
	if err != nil {
		return fmt.Errorf("credential cipher: %w", err)
	}
	dispatcher := crosspost.NewDispatcher(cipher)
	if cfg.CrossPost.SlackWebhookURL != "" {
		dispatcher.Register("slack", slack.NewNotifier(cfg.CrossPost.SlackWebhookURL, nil))
	}
	if cfg.CrossPost.DiscordWebhookURL != "" {
		dispatcher.Register("discord", discord.NewNotifier(cfg.CrossPost.DiscordWebhookURL, nil))
	}

	// --- HTTP ---
	handlers := cfhttp.NewHandlers(authSvc, content, store, cache, labels, syncEngine, renderCache, sanitizer, dispatcher, rateLimiter, posts, *cfg)

	r := chi.NewRouter()
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.WriteTimeout))

	cfhttp.MountRoutes(r, handlers, authSvc, idempotencyMW)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done

	// --- Ordered graceful shutdown ---
	slog.Info("shutdown phase 1: stopping HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("shutdown phase 2: stopping render-engine subprocess")
	if err := renderClient.Close(); err != nil {
		slog.Error("render client close error", "error", err)
	}

	if natsConn != nil {
		slog.Info("shutdown phase 3: draining nats connection")
		if err := natsConn.Drain(); err != nil {
			slog.Error("nats drain error", "error", err)
		}
	}

	slog.Info("shutdown phase 4: closing database")
	if err := db.Close(); err != nil {
		slog.Error("db close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
