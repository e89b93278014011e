package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/revulate/lunabot/askcache"
	"github.com/revulate/lunabot/config"
)

func testDeps() Deps {
	cache := askcache.New(time.Hour, 10)
	cache.Set("fp", "answer")
	return Deps{
		Cfg:     &config.Config{TwitchChannel: "somechannel", CommandPrefix: "#ask"},
		Cache:   cache,
		Started: time.Now().Add(-90 * time.Second),
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewMux(testDeps()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Errorf("missing correlation id header")
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(NewMux(testDeps()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var got struct {
		Channel       string `json:"channel"`
		CommandPrefix string `json:"command_prefix"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		CacheEntries  int    `json:"cache_entries"`
		Transcript    bool   `json:"transcript_enabled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Channel != "somechannel" || got.CommandPrefix != "#ask" {
		t.Errorf("status = %+v", got)
	}
	if got.CacheEntries != 1 {
		t.Errorf("cache_entries = %d", got.CacheEntries)
	}
	if got.UptimeSeconds < 90 {
		t.Errorf("uptime_seconds = %d", got.UptimeSeconds)
	}
	if got.Transcript {
		t.Errorf("transcript should be disabled without a DB")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewMux(testDeps()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCorrelationIDReused(t *testing.T) {
	srv := httptest.NewServer(NewMux(testDeps()))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("correlation id = %q, want corr-123", got)
	}
}
