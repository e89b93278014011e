// Package openaiapi is the gateway to an OpenAI-compatible provider. It
// exposes the three calls the pipeline needs (chat completion, image
// generation, vision analysis), applies bounded timeouts and a small number
// of retries with exponential backoff and jitter, and normalizes all
// provider errors into the package's sentinel taxonomy.
package openaiapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/revulate/lunabot/telemetry"
)

// maxImageBytes bounds the size of a fetched analysis image (Twitch-linked
// screenshots; anything bigger is not worth inlining as base64).
const maxImageBytes = 20 << 20

// Client calls an OpenAI-compatible HTTP API.
type Client struct {
	BaseURL     string
	APIKey      string
	ChatModel   string
	ImageModel  string
	VisionModel string

	// Timeout bounds each attempt; MaxRetries bounds additional attempts for
	// retryable failures (timeouts, 5xx). Zero values get defaults.
	Timeout    time.Duration
	MaxRetries int

	// RetryInterval is the initial backoff delay between attempts.
	// Defaults to 500ms; tests shrink it.
	RetryInterval time.Duration

	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL map[string]string `json:"image_url,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteChat sends a prompt with the configured persona as the system
// message and returns the assistant's reply text.
func (c *Client) CompleteChat(ctx context.Context, prompt, persona string) (string, error) {
	body := map[string]any{
		"model":       c.ChatModel,
		"temperature": 0.7,
		"max_tokens":  500,
		"messages": []chatMessage{
			{Role: "system", Content: persona},
			{Role: "user", Content: prompt},
		},
	}
	var out chatResponse
	if err := c.call(ctx, "chat", "/chat/completions", body, &out); err != nil {
		return "", err
	}
	return extractContent(out)
}

// AnalyzeImage fetches the referenced image, inlines it as a base64 data
// URL, and asks the vision model about it. An unfetchable reference maps to
// ErrImageUnreachable before any provider call is made.
func (c *Client) AnalyzeImage(ctx context.Context, imageURL, prompt string) (string, error) {
	dataURL, err := c.fetchImageDataURL(ctx, imageURL)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"model":      c.VisionModel,
		"max_tokens": 300,
		"messages": []chatMessage{
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: map[string]string{"url": dataURL}},
			}},
		},
	}
	var out chatResponse
	if err := c.call(ctx, "vision", "/chat/completions", body, &out); err != nil {
		return "", err
	}
	return extractContent(out)
}

// GenerateImage produces an image for the prompt and returns its raw bytes.
// "-wide" and "-tall" hints in the prompt select landscape/portrait sizes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	size := "1024x1024"
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "-wide"):
		size = "1792x1024"
	case strings.Contains(lower, "-tall"):
		size = "1024x1792"
	}
	body := map[string]any{
		"model":           c.ImageModel,
		"prompt":          prompt,
		"n":               1,
		"size":            size,
		"response_format": "b64_json",
	}
	var out struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := c.call(ctx, "image", "/images/generations", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: empty image data", ErrInvalidResponse)
	}
	raw, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: bad image encoding: %v", ErrInvalidResponse, err)
	}
	return raw, nil
}

func extractContent(out chatResponse) (string, error) {
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrInvalidResponse)
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty message content", ErrInvalidResponse)
	}
	return text, nil
}

// call posts a JSON payload and decodes the response, retrying only
// retryable failures with exponential backoff and jitter.
func (c *Client) call(ctx context.Context, op, path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrInvalidResponse, err)
	}

	attempt := func() error {
		start := time.Now()
		err := c.once(ctx, path, b, out)
		telemetry.ObserveUpstream(op, ErrorClass(err), time.Since(start))
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.RetryInterval
	if expo.InitialInterval <= 0 {
		expo.InitialInterval = 500 * time.Millisecond
	}
	expo.MaxInterval = 5 * time.Second
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)

	if err := backoff.Retry(attempt, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		slog.Warn("upstream call failed", slog.String("op", op), slog.String("class", ErrorClass(err)), slog.Any("err", err))
		return err
	}
	return nil
}

// once performs a single attempt with its own deadline.
func (c *Client) once(ctx context.Context, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrInvalidResponse, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429", ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		// 4xx: inspect the provider error shape to spot policy refusals.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var pe struct {
			Error struct {
				Code    string `json:"code"`
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(snippet, &pe)
		if pe.Error.Code == "content_policy_violation" || strings.Contains(pe.Error.Message, "content policy") {
			return fmt.Errorf("%w: %s", ErrContentPolicy, pe.Error.Message)
		}
		slog.Warn("upstream 4xx", slog.Int("status", resp.StatusCode), slog.String("body", string(snippet)))
		return fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}
}

// fetchImageDataURL downloads an image and re-encodes it as a data URL the
// provider accepts regardless of whether it can reach the original host.
func (c *Client) fetchImageDataURL(ctx context.Context, imageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUnreachable, err)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUnreachable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d fetching %s", ErrImageUnreachable, resp.StatusCode, imageURL)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("%w: read image: %v", ErrImageUnreachable, err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
