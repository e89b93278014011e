// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., Twitch chat), use ValidateChatReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string

	// Command surface
	CommandPrefix   string
	CreateKeyword   string
	Persona         string
	OwnerUsername   string
	OwnerPersona    string
	AuthorizedUsers []string

	// OpenAI-compatible provider
	OpenAIAPIKey  string
	OpenAIBaseURL string
	ChatModel     string
	ImageModel    string
	VisionModel   string

	// Image host
	NuulsAPIKey    string
	NuulsUploadURL string

	// Rate limiting
	UserRateLimit    int
	UserRateWindow   time.Duration
	GlobalRateLimit  int
	GlobalRateWindow time.Duration

	// Response cache
	CacheTTL      time.Duration
	CacheCapacity int

	// Upstream call behavior
	UpstreamTimeout time.Duration
	UpstreamRetries int

	// Database (chat transcript; optional)
	DBDsn string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are
// missing; use ValidateChatReady() when you require the chat bot. Missing optional variables
// disable features (e.g., transcript logging is skipped without DB_DSN).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	cfg.CommandPrefix = os.Getenv("COMMAND_PREFIX")
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "#ask"
	}
	cfg.CreateKeyword = os.Getenv("CREATE_KEYWORD")
	if cfg.CreateKeyword == "" {
		cfg.CreateKeyword = "create"
	}
	cfg.Persona = os.Getenv("PERSONA")
	if cfg.Persona == "" {
		cfg.Persona = "You are Luna, a helpful assistant."
	}
	cfg.OwnerUsername = strings.ToLower(os.Getenv("OWNER_USERNAME"))
	cfg.OwnerPersona = os.Getenv("OWNER_PERSONA")
	if cfg.OwnerPersona == "" {
		cfg.OwnerPersona = cfg.Persona
	}
	if v := os.Getenv("AUTHORIZED_USERS"); v != "" {
		for _, u := range strings.Split(v, ",") {
			u = strings.ToLower(strings.TrimSpace(u))
			if u != "" {
				cfg.AuthorizedUsers = append(cfg.AuthorizedUsers, u)
			}
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	cfg.ChatModel = os.Getenv("CHAT_MODEL")
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	cfg.ImageModel = os.Getenv("IMAGE_MODEL")
	if cfg.ImageModel == "" {
		cfg.ImageModel = "dall-e-3"
	}
	cfg.VisionModel = os.Getenv("VISION_MODEL")
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}

	cfg.NuulsAPIKey = os.Getenv("NUULS_API_KEY")
	cfg.NuulsUploadURL = os.Getenv("NUULS_UPLOAD_URL")
	if cfg.NuulsUploadURL == "" {
		cfg.NuulsUploadURL = "https://i.nuuls.com/upload"
	}

	var err error
	if cfg.UserRateLimit, err = envInt("USER_RATE_LIMIT", 3); err != nil {
		return nil, err
	}
	if cfg.UserRateWindow, err = envDuration("USER_RATE_WINDOW", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.GlobalRateLimit, err = envInt("GLOBAL_RATE_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.GlobalRateWindow, err = envDuration("GLOBAL_RATE_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = envDuration("CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CacheCapacity, err = envInt("CACHE_CAPACITY", 100); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = envDuration("UPSTREAM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpstreamRetries, err = envInt("UPSTREAM_RETRIES", 2); err != nil {
		return nil, err
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	return cfg, nil
}

// ValidateChatReady checks required fields when the chat bot is enabled.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// ValidateUpstreamReady checks required fields for the AI provider.
func (c *Config) ValidateUpstreamReady() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("missing OPENAI_API_KEY")
	}
	return nil
}

// IsAuthorized reports whether a username is on the allow-list that bypasses
// the per-user rate limit (never the global one).
func (c *Config) IsAuthorized(username string) bool {
	username = strings.ToLower(username)
	for _, u := range c.AuthorizedUsers {
		if u == username {
			return true
		}
	}
	return false
}

// PersonaFor picks the system persona for a requester. The configured owner
// gets a dedicated persona; everyone else shares the default one.
func (c *Config) PersonaFor(username string) string {
	if c.OwnerUsername != "" && strings.ToLower(username) == c.OwnerUsername {
		return c.OwnerPersona
	}
	return c.Persona
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s (duration): %q", key, v)
	}
	return d, nil
}
