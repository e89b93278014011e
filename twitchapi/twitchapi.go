// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs using an app access token: resolving whether the configured channel is
// currently live for the /status endpoint.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/twitch"
)

// NewTokenSource returns a client-credentials token source for Helix calls.
// The app token cannot be used for IRC chat; chat requires a user OAuth
// token with chat:read/chat:edit scopes.
func NewTokenSource(clientID, clientSecret string) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     twitch.Endpoint.TokenURL,
	}
}

// Stream is the subset of Helix stream metadata the service reports.
type Stream struct {
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// HelixClient provides the live-status lookup.
type HelixClient struct {
	TokenSource *clientcredentials.Config
	ClientID    string
	BaseURL     string
	HTTPClient  *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return "https://api.twitch.tv/helix"
}

// GetStreams returns the live streams for a channel login (empty when the
// channel is offline).
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	tok, err := hc.TokenSource.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/streams", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("user_login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix streams request failed: %s", resp.Status)
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
