// Package pipeline orchestrates command fulfillment: classify the message,
// check rate limits, consult the response cache, call the AI gateway, relay
// generated images to the host, and format a chat-safe reply. Every
// component error is caught and mapped to one of a small fixed set of
// user-facing messages here; nothing raw reaches chat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/revulate/lunabot/askcache"
	"github.com/revulate/lunabot/config"
	"github.com/revulate/lunabot/imagehost"
	"github.com/revulate/lunabot/intent"
	"github.com/revulate/lunabot/openaiapi"
	"github.com/revulate/lunabot/ratelimit"
	"github.com/revulate/lunabot/telemetry"
)

// Gateway is the upstream AI surface the pipeline depends on.
type Gateway interface {
	CompleteChat(ctx context.Context, prompt, persona string) (string, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	AnalyzeImage(ctx context.Context, imageURL, prompt string) (string, error)
}

// Relay uploads generated image bytes and returns a short hosted URL.
type Relay interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// Fixed user-safe replies (the requester mention is prepended on send).
const (
	replyEmptyPrompt   = "please include a question or prompt after the command."
	replyContentPolicy = "that request can't be fulfilled."
	replyBadImage      = "couldn't access that image."
	replyTryLater      = "the assistant is a bit overwhelmed, try again later."
	replyInternal      = "an error occurred while processing your request."
)

// Pipeline coordinates one request end to end. All fields are required.
type Pipeline struct {
	Cfg        *config.Config
	Classifier intent.Classifier
	Limiter    *ratelimit.Limiter
	Cache      *askcache.Cache
	Gateway    Gateway
	Relay      Relay
}

// New wires a Pipeline from configuration and collaborators.
func New(cfg *config.Config, limiter *ratelimit.Limiter, cache *askcache.Cache, gw Gateway, relay Relay) *Pipeline {
	return &Pipeline{
		Cfg:        cfg,
		Classifier: intent.Classifier{Prefix: cfg.CommandPrefix, CreateKeyword: cfg.CreateKeyword},
		Limiter:    limiter,
		Cache:      cache,
		Gateway:    gw,
		Relay:      relay,
	}
}

// HandleCommand runs the full pipeline for one chat command and returns the
// reply text (without the requester mention). It never returns an empty
// string and never panics a caller goroutine with a raw error; callers can
// send the result to chat as-is after splitting to message-length chunks.
func (p *Pipeline) HandleCommand(ctx context.Context, userName, channel, rawText string) string {
	corr := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, corr)
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("user", userName), slog.String("channel", channel))

	ctx, span := telemetry.StartSpan(ctx, "pipeline", "handle_command",
		attribute.String("chat.user", userName),
		attribute.String("chat.channel", channel),
	)
	defer span.End()

	if telemetry.InFlightGauge != nil {
		telemetry.InFlightGauge.Inc()
		defer telemetry.InFlightGauge.Dec()
	}
	start := time.Now()
	defer func() {
		if telemetry.PipelineDuration != nil {
			telemetry.PipelineDuration.Observe(time.Since(start).Seconds())
		}
	}()

	// Classified
	req, err := p.Classifier.Classify(rawText)
	if err != nil {
		// Empty prompt: immediate rejection, no rate-limit or cache access.
		log.Info("rejected empty prompt")
		telemetry.CountRequest("unknown", "rejected")
		return replyEmptyPrompt
	}
	span.SetAttributes(attribute.String("ask.kind", req.Kind.String()))
	log = log.With(slog.String("kind", req.Kind.String()))

	// RateChecked
	var decision ratelimit.Decision
	if p.Cfg.IsAuthorized(userName) {
		decision = p.Limiter.AdmitAuthorized(userName)
	} else {
		decision = p.Limiter.Admit(userName)
	}
	if !decision.Allowed {
		wait := int(math.Ceil(decision.RetryAfter.Seconds()))
		log.Info("rate limited", slog.String("scope", decision.Scope), slog.Int("retry_after_s", wait))
		telemetry.CountDenial(decision.Scope)
		telemetry.CountRequest(req.Kind.String(), "rejected")
		return fmt.Sprintf("please wait %ds before asking again.", wait)
	}

	// CacheChecked -> (UpstreamCalled -> ImageRelayed?) -> Replied | Failed
	fp := askcache.Fingerprint(req.Kind.String(), req.Prompt, req.ImageURL)
	answer, hit, err := p.Cache.Do(ctx, fp, func(ctx context.Context) (string, error) {
		return p.resolve(ctx, userName, req)
	})
	if err != nil {
		log.Warn("pipeline failed", slog.String("class", openaiapi.ErrorClass(err)), slog.Any("err", err))
		telemetry.RecordError(span, err)
		telemetry.CountRequest(req.Kind.String(), "failed")
		return failureReply(err)
	}
	if hit {
		telemetry.CountRequest(req.Kind.String(), "cached")
	} else {
		telemetry.CountRequest(req.Kind.String(), "answered")
	}
	if telemetry.CacheHits != nil {
		if hit {
			telemetry.CacheHits.Inc()
		} else {
			telemetry.CacheMisses.Inc()
		}
	}
	telemetry.SetSpanSuccess(span)
	log.Info("replied", slog.Bool("cache_hit", hit), slog.Duration("took", time.Since(start)))
	// Dedup only text answers; the sentence splitter would mangle the dots
	// in a hosted image URL.
	if req.Kind != intent.ImageGeneration {
		answer = RemoveDuplicateSentences(answer)
	}
	return answer
}

// resolve performs the upstream leg of a cache miss. For image generation
// the cached payload is the hosted URL, never the raw bytes, keeping cache
// memory bounded.
func (p *Pipeline) resolve(ctx context.Context, userName string, req intent.Request) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline", "resolve",
		attribute.String("ask.kind", req.Kind.String()),
	)
	defer span.End()

	switch req.Kind {
	case intent.ImageGeneration:
		image, err := p.Gateway.GenerateImage(ctx, req.Prompt)
		if err != nil {
			telemetry.RecordError(span, err)
			return "", err
		}
		url, err := p.Relay.Upload(ctx, image)
		if err != nil {
			telemetry.RecordError(span, err)
			return "", err
		}
		return "here's your image: " + url, nil
	case intent.ImageAnalysis:
		text, err := p.Gateway.AnalyzeImage(ctx, req.ImageURL, req.Prompt)
		if err != nil {
			telemetry.RecordError(span, err)
			return "", err
		}
		return text, nil
	default:
		text, err := p.Gateway.CompleteChat(ctx, req.Prompt, p.Cfg.PersonaFor(userName))
		if err != nil {
			telemetry.RecordError(span, err)
			return "", err
		}
		return text, nil
	}
}

// failureReply maps a normalized error to its fixed user-facing message.
func failureReply(err error) string {
	switch {
	case errors.Is(err, openaiapi.ErrContentPolicy):
		return replyContentPolicy
	case errors.Is(err, openaiapi.ErrImageUnreachable):
		return replyBadImage
	case errors.Is(err, openaiapi.ErrTimeout),
		errors.Is(err, openaiapi.ErrUnavailable),
		errors.Is(err, openaiapi.ErrRateLimited):
		return replyTryLater
	case errors.Is(err, imagehost.ErrUnavailable), errors.Is(err, imagehost.ErrRejected):
		return replyInternal
	default:
		return replyInternal
	}
}
