package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMMAND_PREFIX", "")
	t.Setenv("USER_RATE_LIMIT", "")
	t.Setenv("CACHE_TTL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CommandPrefix != "#ask" {
		t.Errorf("CommandPrefix = %q, want #ask", cfg.CommandPrefix)
	}
	if cfg.CreateKeyword != "create" {
		t.Errorf("CreateKeyword = %q, want create", cfg.CreateKeyword)
	}
	if cfg.UserRateLimit != 3 || cfg.UserRateWindow != 30*time.Second {
		t.Errorf("user rate defaults = %d/%v", cfg.UserRateLimit, cfg.UserRateWindow)
	}
	if cfg.CacheTTL != time.Hour || cfg.CacheCapacity != 100 {
		t.Errorf("cache defaults = %v/%d", cfg.CacheTTL, cfg.CacheCapacity)
	}
	if cfg.UpstreamTimeout != 30*time.Second || cfg.UpstreamRetries != 2 {
		t.Errorf("upstream defaults = %v/%d", cfg.UpstreamTimeout, cfg.UpstreamRetries)
	}
	if cfg.OpenAIBaseURL != "https://api.openai.com/v1" {
		t.Errorf("OpenAIBaseURL = %q", cfg.OpenAIBaseURL)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"USER_RATE_LIMIT", "notanumber"},
		{"USER_RATE_LIMIT", "-1"},
		{"CACHE_TTL", "soon"},
		{"UPSTREAM_TIMEOUT", "-5s"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "somechannel")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	t.Setenv("TWITCH_CHANNEL", "")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}

func TestAuthorizedUsers(t *testing.T) {
	t.Setenv("AUTHORIZED_USERS", "Alice, bob ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.IsAuthorized("alice") || !cfg.IsAuthorized("BOB") {
		t.Errorf("expected alice and bob authorized: %v", cfg.AuthorizedUsers)
	}
	if cfg.IsAuthorized("mallory") {
		t.Errorf("mallory should not be authorized")
	}
}

func TestPersonaFor(t *testing.T) {
	t.Setenv("PERSONA", "You are Luna.")
	t.Setenv("OWNER_USERNAME", "Revulate")
	t.Setenv("OWNER_PERSONA", "You are Cortana.")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.PersonaFor("revulate"); got != "You are Cortana." {
		t.Errorf("owner persona = %q", got)
	}
	if got := cfg.PersonaFor("viewer"); got != "You are Luna." {
		t.Errorf("default persona = %q", got)
	}
}
