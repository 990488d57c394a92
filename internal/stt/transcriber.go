// Package stt converts a PCM WAV blob into a text transcript.
package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Transcriber accepts a WAV blob and returns text, possibly empty.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Close() error
}

// Cascade tries providers in order; the first success wins.
type Cascade struct {
	providers   []Transcriber
	corrections map[string]string
}

// NewCascade builds a provider cascade with an optional vocabulary
// correction table (case-insensitive token substitutions).
func NewCascade(providers []Transcriber, corrections map[string]string) *Cascade {
	lower := make(map[string]string, len(corrections))
	for k, v := range corrections {
		lower[strings.ToLower(k)] = v
	}
	return &Cascade{providers: providers, corrections: lower}
}

// Transcribe tries each provider in order, applies vocabulary
// correction, and treats a whitespace-only result as "no transcript".
func (c *Cascade) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var lastErr error
	for i, p := range c.providers {
		text, err := p.Transcribe(ctx, wav)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("provider_index", i).Msg("stt provider failed, trying next")
			continue
		}
		text = c.applyCorrections(text)
		if strings.TrimSpace(text) == "" {
			return "", nil
		}
		return text, nil
	}
	if lastErr == nil {
		return "", fmt.Errorf("no stt providers configured")
	}
	return "", fmt.Errorf("all stt providers failed: %w", lastErr)
}

func (c *Cascade) applyCorrections(text string) string {
	if len(c.corrections) == 0 {
		return text
	}
	words := strings.Fields(text)
	for i, w := range words {
		trimmed := strings.Trim(w, ".,!?;:")
		if repl, ok := c.corrections[strings.ToLower(trimmed)]; ok {
			words[i] = repl
		}
	}
	return strings.Join(words, " ")
}

// Close closes every underlying provider, returning the first error.
func (c *Cascade) Close() error {
	var firstErr error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
