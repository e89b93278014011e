package imagehost

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUpload(t *testing.T) {
	var gotFile []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "nuuls-key" {
			t.Errorf("missing api_key query param")
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotFile, _ = io.ReadAll(f)
		_, _ = w.Write([]byte("uploaded: https://i.nuuls.com/xyz.png\n"))
	}))
	defer server.Close()

	c := &Client{UploadURL: server.URL, APIKey: "nuuls-key"}
	url, err := c.Upload(context.Background(), []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if url != "https://i.nuuls.com/xyz.png" {
		t.Errorf("url = %q", url)
	}
	if !bytes.Equal(gotFile, []byte("png-bytes")) {
		t.Errorf("uploaded bytes mismatch")
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"too large", http.StatusRequestEntityTooLarge, "", ErrRejected},
		{"bad request", http.StatusBadRequest, "", ErrRejected},
		{"server error", http.StatusInternalServerError, "", ErrUnavailable},
		{"no url in response", http.StatusOK, "ok thanks", ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := &Client{UploadURL: server.URL}
			_, err := c.Upload(context.Background(), []byte("data"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUploadLocalRejections(t *testing.T) {
	c := &Client{UploadURL: "http://unused.invalid"}

	if _, err := c.Upload(context.Background(), nil); !errors.Is(err, ErrRejected) {
		t.Errorf("empty payload err = %v, want ErrRejected", err)
	}
	huge := strings.Repeat("x", maxUploadBytes+1)
	if _, err := c.Upload(context.Background(), []byte(huge)); !errors.Is(err, ErrRejected) {
		t.Errorf("oversized payload err = %v, want ErrRejected", err)
	}
}

func TestUploadConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c := &Client{UploadURL: server.URL}
	if _, err := c.Upload(context.Background(), []byte("data")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
