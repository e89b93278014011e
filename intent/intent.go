// Package intent classifies raw command text into a typed request: a plain
// question, an image-generation request, or an image-analysis request. It is
// a pure function of the input text and configuration; no I/O happens here.
package intent

import (
	"errors"
	"regexp"
	"strings"
)

// Kind is the classified request type.
type Kind int

const (
	Question Kind = iota
	ImageGeneration
	ImageAnalysis
)

// String returns a short label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case Question:
		return "question"
	case ImageGeneration:
		return "image_generation"
	case ImageAnalysis:
		return "image_analysis"
	default:
		return "unknown"
	}
}

// ErrEmptyPrompt is returned when, after trimming and keyword removal, no
// prompt text remains.
var ErrEmptyPrompt = errors.New("empty prompt")

// Request is the classified form of a command. Immutable after Classify.
type Request struct {
	Kind     Kind
	Prompt   string
	ImageURL string
}

// DefaultAnalysisPrompt is substituted when an image URL arrives with no
// accompanying text.
const DefaultAnalysisPrompt = "describe this image"

// imageURLPattern matches direct links to common image formats.
var imageURLPattern = regexp.MustCompile(`(https?://\S+\.(?:png|jpe?g|gif|webp))`)

// Classifier holds the configured command prefix and image-generation
// trigger keyword.
type Classifier struct {
	Prefix        string
	CreateKeyword string
}

// Classify parses raw command text deterministically:
//   - text containing an image URL -> ImageAnalysis (remaining text is the
//     prompt; DefaultAnalysisPrompt if none)
//   - text starting with the create keyword (case-insensitive) -> ImageGeneration
//   - anything else -> Question
//
// The command prefix is stripped if present; the chat layer normally does
// the prefix filtering, so a missing prefix is not an error.
func (c Classifier) Classify(raw string) (Request, error) {
	text := strings.TrimSpace(raw)
	if c.Prefix != "" && strings.HasPrefix(strings.ToLower(text), strings.ToLower(c.Prefix)) {
		text = strings.TrimSpace(text[len(c.Prefix):])
	}

	if m := imageURLPattern.FindString(text); m != "" {
		prompt := strings.TrimSpace(strings.Replace(text, m, "", 1))
		if prompt == "" {
			prompt = DefaultAnalysisPrompt
		}
		return Request{Kind: ImageAnalysis, Prompt: prompt, ImageURL: m}, nil
	}

	if kw := c.CreateKeyword; kw != "" {
		lower := strings.ToLower(text)
		lkw := strings.ToLower(kw)
		if lower == lkw {
			return Request{}, ErrEmptyPrompt
		}
		if strings.HasPrefix(lower, lkw+" ") {
			prompt := strings.TrimSpace(text[len(kw)+1:])
			if prompt == "" {
				return Request{}, ErrEmptyPrompt
			}
			return Request{Kind: ImageGeneration, Prompt: prompt}, nil
		}
	}

	if text == "" {
		return Request{}, ErrEmptyPrompt
	}
	return Request{Kind: Question, Prompt: text}, nil
}
