// Package imagehost uploads generated images to i.nuuls.com and returns the
// short hosted URL used in chat replies. Raw image bytes never enter the
// response cache; only the URL does.
package imagehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	"github.com/revulate/lunabot/telemetry"
)

// Relay error taxonomy. Both are terminal for the request that hit them; an
// already-generated image is discarded rather than retried elsewhere.
var (
	ErrUnavailable = errors.New("image host unavailable")
	ErrRejected    = errors.New("image host rejected upload")
)

// maxUploadBytes is the host's documented payload cap; larger uploads are
// rejected locally without a network call.
const maxUploadBytes = 10 << 20

var hostedURLPattern = regexp.MustCompile(`https?://\S+`)

// Client uploads images to a nuuls-compatible host.
type Client struct {
	UploadURL  string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Upload posts image bytes as a multipart form and returns the hosted URL
// parsed from the plain-text response body.
func (c *Client) Upload(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrRejected)
	}
	if len(image) > maxUploadBytes {
		return "", fmt.Errorf("%w: payload too large (%d bytes)", ErrRejected, len(image))
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	url := c.UploadURL
	if c.APIKey != "" {
		url += "?api_key=" + c.APIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http().Do(req)
	if err != nil {
		c.count("unavailable")
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusRequestEntityTooLarge || resp.StatusCode == http.StatusBadRequest:
		c.count("rejected")
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		c.count("unavailable")
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	hosted := hostedURLPattern.FindString(string(body))
	if hosted == "" {
		c.count("rejected")
		return "", fmt.Errorf("%w: no URL in upload response", ErrRejected)
	}
	c.count("ok")
	return hosted, nil
}

func (c *Client) count(outcome string) {
	if telemetry.RelayUploads != nil {
		telemetry.RelayUploads.WithLabelValues(outcome).Inc()
	}
}
