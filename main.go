// Command lunabot is the main entrypoint for the Twitch chat assistant.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres and runs idempotent migrations for the
//     chat transcript.
//   - Connects the chat bot and dispatches prefixed commands through the ask
//     pipeline (classification, rate limiting, caching, upstream calls).
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/revulate/lunabot/askcache"
	"github.com/revulate/lunabot/chat"
	"github.com/revulate/lunabot/config"
	"github.com/revulate/lunabot/db"
	"github.com/revulate/lunabot/imagehost"
	"github.com/revulate/lunabot/openaiapi"
	"github.com/revulate/lunabot/pipeline"
	"github.com/revulate/lunabot/ratelimit"
	"github.com/revulate/lunabot/server"
	"github.com/revulate/lunabot/telemetry"
	"github.com/revulate/lunabot/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateUpstreamReady(); err != nil {
		slog.Error("upstream config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("lunabot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB is optional: without DB_DSN the transcript logger is disabled and the
	// bot still answers commands.
	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		migrationCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(migrationCtx, database); err != nil {
			cancel()
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		cancel()
		slog.Info("transcript store ready")
	} else {
		slog.Info("transcript logging disabled (no DB_DSN)")
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pipeline collaborators
	gateway := &openaiapi.Client{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		ChatModel:   cfg.ChatModel,
		ImageModel:  cfg.ImageModel,
		VisionModel: cfg.VisionModel,
		Timeout:     cfg.UpstreamTimeout,
		MaxRetries:  cfg.UpstreamRetries,
	}
	relay := &imagehost.Client{
		UploadURL: cfg.NuulsUploadURL,
		APIKey:    cfg.NuulsAPIKey,
	}
	limiter := ratelimit.New(cfg.UserRateLimit, cfg.UserRateWindow, cfg.GlobalRateLimit, cfg.GlobalRateWindow)
	cache := askcache.New(cfg.CacheTTL, cfg.CacheCapacity)
	p := pipeline.New(cfg, limiter, cache, gateway, relay)

	// Drop stale per-user windows periodically so the limiter map stays bounded.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					slog.Debug("pruned rate limit windows", slog.Int("count", n))
				}
			}
		}
	}()

	// Best-effort Helix client (client-credentials) for the /status live probe.
	// This app token is NOT used for IRC chat.
	var helix *twitchapi.HelixClient
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		helix = &twitchapi.HelixClient{
			TokenSource: twitchapi.NewTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret),
			ClientID:    cfg.TwitchClientID,
		}
	}

	// Chat bot
	go func() {
		if err := chat.Start(ctx, cfg, database, p); err != nil {
			slog.Error("chat bot exited with error", slog.Any("err", err))
			stop()
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		deps := server.Deps{Cfg: cfg, DB: database, Cache: cache, Helix: helix, Started: time.Now()}
		if err := server.Start(ctx, addr, deps); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
