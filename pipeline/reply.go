package pipeline

import (
	"regexp"
	"strings"
)

// MaxMessageLength is Twitch's per-message character limit.
const MaxMessageLength = 500

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]?`)

// SplitMessage splits a reply into chunks of at most maxLength characters,
// preferring sentence boundaries, then word boundaries for oversized
// sentences.
func SplitMessage(message string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = MaxMessageLength
	}
	if len(message) <= maxLength {
		return []string{message}
	}

	var chunks []string
	var current string
	for _, sentence := range sentencePattern.FindAllString(message, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(current)+len(sentence)+1 > maxLength {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
			}
			if len(sentence) > maxLength {
				chunks, current = splitWords(chunks, sentence, maxLength)
				continue
			}
			current = sentence
			continue
		}
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func splitWords(chunks []string, sentence string, maxLength int) ([]string, string) {
	var current string
	for _, word := range strings.Fields(sentence) {
		if len(current)+len(word)+1 > maxLength {
			if current != "" {
				chunks = append(chunks, current)
			}
			current = word
			continue
		}
		if current == "" {
			current = word
		} else {
			current += " " + word
		}
	}
	return chunks, current
}

// RemoveDuplicateSentences drops repeated sentences, preserving first
// occurrence order. Chat models occasionally echo a sentence twice; the
// 500-char budget is too tight to waste on that.
func RemoveDuplicateSentences(text string) string {
	seen := make(map[string]bool)
	var out []string
	for _, sentence := range sentencePattern.FindAllString(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		key := strings.ToLower(strings.TrimRight(sentence, ".!?"))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sentence)
	}
	return strings.Join(out, " ")
}
