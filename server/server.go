// Package server exposes the operational HTTP surface: liveness, status, and
// Prometheus metrics. It injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/revulate/lunabot/askcache"
	"github.com/revulate/lunabot/config"
	"github.com/revulate/lunabot/telemetry"
	"github.com/revulate/lunabot/twitchapi"
)

// Deps carries the collaborators the handlers report on. DB and Helix are
// optional; missing ones are simply omitted from /status.
type Deps struct {
	Cfg     *config.Config
	DB      *sql.DB
	Cache   *askcache.Cache
	Helix   *twitchapi.HelixClient
	Started time.Time
}

// NewMux returns the HTTP handler with all routes.
func NewMux(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", deps.handleHealthz)
	mux.HandleFunc("/status", deps.handleStatus)

	// Correlation ID injector
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleHealthz responds to liveness probes. The database is checked only
// when configured; the bot runs fine without a transcript store.
func (d Deps) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if d.DB != nil {
		if err := d.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Channel       string `json:"channel"`
	CommandPrefix string `json:"command_prefix"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	CacheEntries  int    `json:"cache_entries"`
	Transcript    bool   `json:"transcript_enabled"`
	Live          *bool  `json:"live,omitempty"`
	StreamTitle   string `json:"stream_title,omitempty"`
}

// handleStatus reports bot configuration and, when Helix credentials are
// available, whether the channel is currently live.
func (d Deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Channel:       d.Cfg.TwitchChannel,
		CommandPrefix: d.Cfg.CommandPrefix,
		UptimeSeconds: int64(time.Since(d.Started).Seconds()),
		Transcript:    d.DB != nil,
	}
	if d.Cache != nil {
		resp.CacheEntries = d.Cache.Len()
	}
	if d.Helix != nil && d.Cfg.TwitchChannel != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if streams, err := d.Helix.GetStreams(ctx, d.Cfg.TwitchChannel); err == nil {
			live := len(streams) > 0
			resp.Live = &live
			if live {
				resp.StreamTitle = streams[0].Title
			}
		} else {
			telemetry.LoggerWithCorr(r.Context()).Debug("live status lookup failed", slog.Any("err", err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, deps Deps) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
