// Package handoff intercepts in-flight reply sentences when the target
// speaker is no longer present in the voice channel and reroutes them
// to a text fallback instead of speaking to an empty room (C9).
package handoff

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// TextSink delivers a handed-off sentence to wherever absent speakers
// can still read it (a text channel, a DM).
type TextSink interface {
	PostHandoffText(speakerID string, taskID uint64, text string) error
}

// Marker prefixes every sentence diverted to the text sink, so a reader
// can tell a handed-off reply apart from a normal channel message (§4.9).
const Marker = "[handoff] "

// Router tracks channel presence and decides, per sentence, whether
// normal playback should proceed or the text should be diverted. A
// single Router is shared across all speakers in a voice session; the
// present flag reflects the session's own speaker, not per-speaker
// state, matching the spec's single-active-listener model.
type Router struct {
	mu      sync.RWMutex
	present bool
	sink    TextSink
}

// New builds a Router that starts in the present state.
func New(sink TextSink) *Router {
	return &Router{present: true, sink: sink}
}

// SetPresent updates presence. Called by the voice adapter whenever the
// tracked speaker joins or leaves the channel.
func (r *Router) SetPresent(present bool) {
	r.mu.Lock()
	r.present = present
	r.mu.Unlock()
}

// IsPresent reports the last known presence state.
func (r *Router) IsPresent() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.present
}

// RouteOrPlay returns true if the sentence was handed off to the text
// sink and must not be synthesized or played; false if the caller
// should proceed with normal TTS playback. Presence is sampled fresh
// per call so a mid-stream departure diverts only the sentences that
// follow it, per B4.
func (r *Router) RouteOrPlay(speakerID string, taskID uint64, text string) bool {
	if r.IsPresent() {
		return false
	}
	if err := r.sink.PostHandoffText(speakerID, taskID, Marker+text); err != nil {
		log.Warn().Err(err).Str("speaker_id", speakerID).Uint64("task_id", taskID).Msg("failed to post handoff text")
	}
	return true
}
