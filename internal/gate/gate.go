// Package gate decides whether a transcript is addressed to the
// assistant and, if so, strips any wake-word prefix.
package gate

import (
	"strings"
	"sync"
	"time"
)

// Gate implements the wake-word / conversation-window decision from the
// spec: while a per-speaker conversation window is open, every
// transcript is admitted unchanged; otherwise a transcript must begin
// with one of the configured wake phrases.
type Gate struct {
	enabled bool
	phrases []string
	window  time.Duration

	mu       sync.Mutex
	lastResp map[string]time.Time
}

// New builds a Gate. If enabled is false, Admit always admits unchanged.
func New(enabled bool, phrases []string, window time.Duration) *Gate {
	lower := make([]string, len(phrases))
	for i, p := range phrases {
		lower[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return &Gate{
		enabled:  enabled,
		phrases:  lower,
		window:   window,
		lastResp: make(map[string]time.Time),
	}
}

// Admit returns whether the transcript should be dispatched and the
// transcript with any wake prefix stripped.
func (g *Gate) Admit(speakerID, transcript string, now time.Time) (admit bool, cleaned string) {
	if !g.enabled {
		return true, transcript
	}

	g.mu.Lock()
	last, ok := g.lastResp[speakerID]
	g.mu.Unlock()

	if ok && now.Sub(last) < g.window {
		return true, transcript
	}

	return g.matchWakePhrase(transcript)
}

func (g *Gate) matchWakePhrase(transcript string) (bool, string) {
	trimmed := strings.TrimSpace(transcript)
	lower := strings.ToLower(trimmed)
	tokens := strings.Fields(lower)

	for _, phrase := range g.phrases {
		if phrase == "" {
			continue
		}
		if strings.HasPrefix(lower, phrase) {
			return true, strings.TrimSpace(trimmed[len(phrase):])
		}
		// Tolerance: scan the first five tokens for the phrase anchored
		// at the start of some token window, in case of STT filler
		// words ahead of the wake word.
		phraseTokens := strings.Fields(phrase)
		limit := len(tokens)
		if limit > 5 {
			limit = 5
		}
		for start := 0; start < limit; start++ {
			if matchesAt(tokens, start, phraseTokens) {
				rest := strings.Join(tokens[start+len(phraseTokens):], " ")
				return true, rest
			}
		}
	}
	return false, transcript
}

func matchesAt(tokens []string, start int, phraseTokens []string) bool {
	if start+len(phraseTokens) > len(tokens) {
		return false
	}
	for i, pt := range phraseTokens {
		if tokens[start+i] != pt {
			return false
		}
	}
	return true
}

// MarkAssistantResponded restarts the conversation window for a
// speaker. Callers must invoke this after every assistant response,
// including error apologies, per the spec's resolution of the "does an
// error response reopen the window" open question.
func (g *Gate) MarkAssistantResponded(speakerID string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastResp[speakerID] = now
}
