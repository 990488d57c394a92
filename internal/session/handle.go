package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaywire/voicebridge/internal/alert"
	"github.com/relaywire/voicebridge/internal/command"
	"github.com/relaywire/voicebridge/internal/config"
	"github.com/relaywire/voicebridge/internal/gate"
	"github.com/relaywire/voicebridge/internal/handoff"
	"github.com/relaywire/voicebridge/internal/playback"
)

// StopConfirmation is spoken after an interrupt command cancels
// in-flight tasks.
const StopConfirmation = "Stopped."

// ListeningChime is the short acknowledgment played on the wake-only
// fast path — no brain call, just a cue that the window is open.
const ListeningChime = "Listening."

// SessionEndedNoteWindow bounds how recently the speaker must have
// talked for a "session ended" note to be worth posting on departure.
const SessionEndedNoteWindow = 2 * time.Minute

// Handle bundles the per-guild wiring — conversation state, the task
// manager, the playback queue, the handoff router, and the alert inbox
// — as struct fields, so a whole session is one value with an explicit
// lifecycle instead of package-level globals (§9).
type Handle struct {
	cfg *config.Config

	Gate     *gate.Gate
	Convos   *ConversationStore
	Tasks    *Manager
	Playback *playback.Queue
	Handoff  *handoff.Router
	Alerts   *alert.Inbox
	Diag     *DiagnosticStore

	lastTranscript map[string]transcriptRecord
}

type transcriptRecord struct {
	speakerID string
	text      string
	at        time.Time
}

// NewHandle wires a Handle from already-constructed collaborators. The
// caller (cmd/voicebridge) is responsible for building the STT/TTS
// cascades, the brain client, and the voice-platform Player before
// calling this.
func NewHandle(cfg *config.Config, g *gate.Gate, convos *ConversationStore, pq *playback.Queue, hr *handoff.Router, inbox *alert.Inbox, diag *DiagnosticStore, mgr *Manager) *Handle {
	return &Handle{
		cfg:            cfg,
		Gate:           g,
		Convos:         convos,
		Tasks:          mgr,
		Playback:       pq,
		Handoff:        hr,
		Alerts:         inbox,
		Diag:           diag,
		lastTranscript: make(map[string]transcriptRecord),
	}
}

// HandleTranscript is the entry point the voice pipeline calls once
// C1/C2 have produced a finished transcript for a speaker: it runs the
// wake-word gate (C3), the command router (C4), and finally dispatches
// to the task manager (C5).
func (h *Handle) HandleTranscript(ctx context.Context, speakerID, transcript string) {
	now := time.Now()
	h.lastTranscript[speakerID] = transcriptRecord{speakerID: speakerID, text: transcript, at: now}

	admitted, cleaned := h.Gate.Admit(speakerID, transcript, now)
	if !admitted {
		return
	}

	switch command.Route(cleaned) {
	case command.KindStop:
		h.Tasks.CancelAll()
		h.Playback.Clear()
		h.Tasks.PlayPhrase(ctx, 0, StopConfirmation)
	case command.KindListeningAck:
		h.Gate.MarkAssistantResponded(speakerID, now)
		h.Tasks.PlayPhrase(ctx, 0, ListeningChime)
	default:
		h.Tasks.Dispatch(ctx, speakerID, cleaned)
	}
}

// OnPresenceChange is called by the voice adapter whenever the tracked
// speaker joins or leaves the channel. On departure it posts a "session
// ended" note if the speaker was talking recently; on return it
// delivers any alerts queued while they were away.
func (h *Handle) OnPresenceChange(speakerID string, present bool) {
	wasPresent := h.Handoff.IsPresent()
	h.Handoff.SetPresent(present)

	if !present && wasPresent {
		h.noteSessionEnded(speakerID)
		return
	}
	if present && !wasPresent {
		h.deliverBriefing(speakerID)
	}
}

func (h *Handle) noteSessionEnded(speakerID string) {
	rec, ok := h.lastTranscript[speakerID]
	if !ok || time.Since(rec.at) > SessionEndedNoteWindow {
		return
	}
	h.Handoff.RouteOrPlay(speakerID, 0, "Session ended — last topic: "+rec.text)
}

func (h *Handle) deliverBriefing(speakerID string) {
	alerts := h.Alerts.Drain()
	if len(alerts) == 0 {
		return
	}
	log.Info().Str("speaker_id", speakerID).Int("count", len(alerts)).Msg("delivering queued alert briefing")
	h.Tasks.PlayPhrase(context.Background(), 0, briefingSummary(alerts))
}

// briefingSummary builds the single spoken briefing for a batch of
// queued alerts: the count plus the most urgent item first (I6/P7 —
// alerts arrive from Drain already ordered urgent-first, oldest-first).
func briefingSummary(alerts []alert.Alert) string {
	top := alerts[0]
	summary := fmt.Sprintf("You have %d queued notification", len(alerts))
	if len(alerts) != 1 {
		summary += "s"
	}
	summary += ". The most urgent one: " + top.Message
	if top.FullDetail != "" {
		summary += ". Details: " + top.FullDetail
	}
	return summary
}
