// Package tts synthesizes text to audio via pluggable providers and
// sanitizes input before synthesis.
package tts

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
)

// StreamStartTimeout bounds how long a single provider gets to return
// synthesized audio before the cascade falls through to the next one
// (§5's "TTS stream startup 5 s").
const StreamStartTimeout = 5 * time.Second

// Synthesizer returns a playable audio blob for the given text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthesizeFunc lets callers depend on a synthesis capability without
// binding to *Cascade directly; (*Cascade).Synthesize satisfies it.
type SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

// Cascade falls through to the next configured provider on failure.
type Cascade struct {
	providers []Synthesizer
}

// NewCascade builds a synthesis provider cascade.
func NewCascade(providers ...Synthesizer) *Cascade {
	return &Cascade{providers: providers}
}

// Synthesize sanitizes text, skips synthesis entirely for
// punctuation-only remnants, and falls through providers on failure.
func (c *Cascade) Synthesize(ctx context.Context, text string) ([]byte, error) {
	clean := Sanitize(text)
	if isPunctuationOnly(clean) {
		return nil, nil
	}

	var lastErr error
	for i, p := range c.providers {
		audio, err := synthesizeWithTimeout(ctx, p, clean)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("provider_index", i).Msg("tts provider failed, trying next")
			continue
		}
		return audio, nil
	}
	if lastErr == nil {
		return nil, fmt.Errorf("no tts providers configured")
	}
	return nil, fmt.Errorf("all tts providers failed: %w", lastErr)
}

func synthesizeWithTimeout(ctx context.Context, p Synthesizer, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, StreamStartTimeout)
	defer cancel()
	return p.Synthesize(ctx, text)
}

// Sanitize strips control characters, zero-width characters, and soft
// hyphens before synthesis.
func Sanitize(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\u00ad': // soft hyphen
			continue
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff': // zero-width
			continue
		case unicode.IsControl(r) && r != '\n' && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isPunctuationOnly(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
