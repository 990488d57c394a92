package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaywire/voicebridge/internal/brain"
	"github.com/relaywire/voicebridge/internal/playback"
	"github.com/relaywire/voicebridge/internal/tts"
)

// AckText is the brief acknowledgment spoken when a new task is
// dispatched while any other task is still in flight.
const AckText = "On it."

// Router decides, per sentence, whether normal TTS playback should
// happen or the text should be handed off elsewhere. A nil Router
// always plays normally.
type Router interface {
	RouteOrPlay(speakerID string, taskID uint64, text string) bool
}

// Task is one in-flight brain exchange for a speaker.
type Task struct {
	ID         uint64
	SpeakerID  string
	Transcript string
	StartedAt  time.Time
	cancel     context.CancelFunc
}

// Manager dispatches brain exchanges, tracks which are in flight per
// speaker, and owns their cancellation (C5).
type Manager struct {
	mu     sync.Mutex
	tasks  map[uint64]*Task
	nextID uint64

	convos    *ConversationStore
	playback  *playback.Queue
	brain     *brain.Client
	synth     tts.SynthesizeFunc
	router    Router
	onReplied func(speakerID string)
	streaming bool

	phraseMu sync.Mutex
	phrases  map[string][]byte
}

// NewManager wires a task manager against its dependencies. synth is
// the TTS cascade to use for every sentence; router, if non-nil,
// intercepts sentences that should be handed off instead of played.
// onReplied, if non-nil, is called once a task's stream finishes
// without being aborted — including a fallback apology — so the caller
// can reopen the conversation window. streaming controls whether reply
// sentences are synthesized and played as they arrive (§6.6); when
// false, the full reply is buffered and played as one segment.
func NewManager(convos *ConversationStore, pq *playback.Queue, bc *brain.Client, synth tts.SynthesizeFunc, router Router, onReplied func(speakerID string), streaming bool) *Manager {
	return &Manager{
		tasks:     make(map[uint64]*Task),
		convos:    convos,
		playback:  pq,
		brain:     bc,
		synth:     synth,
		router:    router,
		onReplied: onReplied,
		streaming: streaming,
		phrases:   make(map[string][]byte),
	}
}

// ActiveCount reports how many tasks are currently in flight.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// CancelAll cancels every in-flight task, e.g. on a stop command or shutdown,
// and reports how many were cancelled (§4.5).
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	return len(tasks)
}

// Dispatch snapshots the speaker's conversation, starts a brain
// exchange in the background, and returns the new task's ID. If other
// tasks are already active for this speaker's session, a brief
// acknowledgment is queued first.
func (m *Manager) Dispatch(ctx context.Context, speakerID, transcript string) uint64 {
	wasActive := m.ActiveCount() > 0

	history := m.convos.AppendUserAndSnapshot(speakerID, transcript)

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{ID: id, SpeakerID: speakerID, Transcript: transcript, StartedAt: time.Now(), cancel: cancel}
	m.tasks[id] = t
	m.mu.Unlock()

	if wasActive {
		m.PlayPhrase(taskCtx, id, AckText)
	}

	go m.run(taskCtx, t, history)
	return id
}

func (m *Manager) run(ctx context.Context, t *Task, history []Entry) {
	defer m.finish(t.ID)

	msgs := make([]brain.Message, len(history))
	for i, e := range history {
		msgs[i] = brain.Message{Role: e.Role, Content: e.Content}
	}

	var buffered []string
	result, err := m.brain.Stream(ctx, msgs, t.Transcript, t.SpeakerID, func(sentence string) {
		if !m.streaming {
			buffered = append(buffered, sentence)
			return
		}
		m.emit(ctx, t, sentence)
	})
	if err != nil {
		log.Error().Err(err).Uint64("task_id", t.ID).Msg("brain stream failed")
		return
	}
	if result.Aborted {
		return
	}
	if !m.streaming && len(buffered) > 0 {
		m.emit(ctx, t, strings.Join(buffered, " "))
	}
	if result.FullText != "" {
		m.convos.AppendAssistant(t.SpeakerID, result.FullText)
	}
	if m.onReplied != nil {
		m.onReplied(t.SpeakerID)
	}
}

func (m *Manager) emit(ctx context.Context, t *Task, sentence string) {
	if ctx.Err() != nil {
		return
	}
	if m.router != nil && m.router.RouteOrPlay(t.SpeakerID, t.ID, sentence) {
		return
	}

	audio, err := m.synth(ctx, sentence)
	if err != nil {
		log.Warn().Err(err).Uint64("task_id", t.ID).Msg("synthesis failed, dropping sentence")
		return
	}
	if audio == nil || ctx.Err() != nil {
		return
	}
	m.playback.Enqueue(&playback.Segment{TaskID: t.ID, Audio: audio})
}

// PlayPhrase synthesizes (once, then from cache) and enqueues a short
// fixed phrase such as an acknowledgment or stop confirmation, tagged
// with the given task ID (0 for phrases not tied to a specific task).
func (m *Manager) PlayPhrase(ctx context.Context, taskID uint64, text string) {
	m.phraseMu.Lock()
	audio, cached := m.phrases[text]
	m.phraseMu.Unlock()

	if !cached {
		var err error
		audio, err = m.synth(ctx, text)
		if err != nil {
			log.Warn().Err(err).Str("phrase", text).Msg("failed to synthesize fixed phrase")
			return
		}
		m.phraseMu.Lock()
		m.phrases[text] = audio
		m.phraseMu.Unlock()
	}
	if audio == nil {
		return
	}
	m.playback.Enqueue(&playback.Segment{TaskID: taskID, Audio: audio})
}

func (m *Manager) finish(id uint64) {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
}
