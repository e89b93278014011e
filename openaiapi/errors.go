package openaiapi

import "errors"

// Normalized upstream error taxonomy. Every error leaving this package wraps
// exactly one of these sentinels; no raw provider error shapes propagate
// upward.
var (
	// ErrTimeout: the call exceeded its deadline. Retryable.
	ErrTimeout = errors.New("upstream timeout")
	// ErrUnavailable: connection failures and 5xx responses. Retryable.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited: provider-side throttling (429). Not retried
	// immediately; surfaced like a timeout.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrInvalidResponse: malformed or empty provider response, or a 4xx we
	// caused. Terminal; treated as an internal fault.
	ErrInvalidResponse = errors.New("invalid upstream response")
	// ErrContentPolicy: the provider refused the prompt. Terminal.
	ErrContentPolicy = errors.New("content policy rejected")
	// ErrImageUnreachable: the referenced image could not be fetched. Terminal.
	ErrImageUnreachable = errors.New("image unreachable")
)

// IsRetryable reports whether a normalized error is worth another attempt.
// Only timeouts and unavailability qualify; policy rejections and malformed
// input never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// ErrorClass returns a short label for metrics and logs.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrContentPolicy):
		return "content_policy"
	case errors.Is(err, ErrImageUnreachable):
		return "image_unreachable"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	default:
		return "unknown"
	}
}
