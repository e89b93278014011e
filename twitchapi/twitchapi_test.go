package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2/clientcredentials"
)

func TestGetStreams(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "app-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	helixServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Client-Id") != "test-client-id" {
			t.Errorf("missing Client-Id header")
		}
		if r.Header.Get("Authorization") != "Bearer app-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("user_login") != "somechannel" {
			t.Errorf("user_login = %q", r.URL.Query().Get("user_login"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"title": "Live now", "started_at": "2024-01-02T15:04:05Z"},
			},
		})
	}))
	defer helixServer.Close()

	hc := &HelixClient{
		TokenSource: &clientcredentials.Config{
			ClientID:     "test-client-id",
			ClientSecret: "secret",
			TokenURL:     tokenServer.URL,
		},
		ClientID: "test-client-id",
		BaseURL:  helixServer.URL,
	}

	streams, err := hc.GetStreams(context.Background(), "somechannel")
	if err != nil {
		t.Fatalf("GetStreams error: %v", err)
	}
	if len(streams) != 1 || streams[0].Title != "Live now" {
		t.Errorf("streams = %+v", streams)
	}
}

func TestGetStreamsEmptyLogin(t *testing.T) {
	hc := &HelixClient{TokenSource: NewTokenSource("id", "secret")}
	if _, err := hc.GetStreams(context.Background(), ""); err == nil {
		t.Errorf("expected error for empty login")
	}
}
