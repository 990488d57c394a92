// Package session owns per-speaker conversation history and the
// in-flight task map — the two pieces of shared mutable state the rest
// of the pipeline dispatches work against.
package session

import (
	"sync"
	"time"
)

// Entry is one turn of conversation history.
type Entry struct {
	Role    string // "user" or "assistant"
	Content string
}

type conversation struct {
	entries      []Entry
	lastActivity time.Time
}

// ConversationStore is the per-speaker, capacity-bounded, oldest-first
// conversation history (spec's Conversation data model). Appends are
// serialized per speaker; snapshots for task dispatch are taken under
// the same lock.
type ConversationStore struct {
	mu       sync.Mutex
	cap      int
	idleTTL  time.Duration
	speakers map[string]*conversation
	diag     *DiagnosticStore
}

// NewConversationStore builds a store with the given per-speaker
// capacity bound and inactivity pruning threshold. diag may be nil.
func NewConversationStore(cap int, idleTTL time.Duration, diag *DiagnosticStore) *ConversationStore {
	return &ConversationStore{
		cap:      cap,
		idleTTL:  idleTTL,
		speakers: make(map[string]*conversation),
		diag:     diag,
	}
}

// AppendUserAndSnapshot appends a user turn and returns a read-only copy
// of the history as it stood immediately after the append — the
// snapshot a dispatched task will use for the rest of its life (I1).
func (s *ConversationStore) AppendUserAndSnapshot(speakerID, content string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.getOrCreateLocked(speakerID)
	c.entries = append(c.entries, Entry{Role: "user", Content: content})
	s.evictLocked(c)
	c.lastActivity = time.Now()

	snap := make([]Entry, len(c.entries))
	copy(snap, c.entries)

	if s.diag != nil {
		s.diag.AppendTurn(speakerID, "user", content)
	}
	return snap
}

// AppendAssistant appends exactly one assistant turn, evicting the
// oldest entries past capacity. Called at most once per task, after a
// non-aborted stream completes (I5).
func (s *ConversationStore) AppendAssistant(speakerID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.getOrCreateLocked(speakerID)
	c.entries = append(c.entries, Entry{Role: "assistant", Content: content})
	s.evictLocked(c)
	c.lastActivity = time.Now()

	if s.diag != nil {
		s.diag.AppendTurn(speakerID, "assistant", content)
	}
}

// Len reports the number of history entries currently held for a
// speaker (used by tests exercising the history-bound invariant).
func (s *ConversationStore) Len(speakerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.speakers[speakerID]
	if !ok {
		return 0
	}
	return len(c.entries)
}

// PruneIdle removes conversations that have had no activity within the
// idle TTL.
func (s *ConversationStore) PruneIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.speakers {
		if now.Sub(c.lastActivity) > s.idleTTL {
			delete(s.speakers, id)
			removed++
		}
	}
	return removed
}

func (s *ConversationStore) getOrCreateLocked(speakerID string) *conversation {
	c, ok := s.speakers[speakerID]
	if !ok {
		c = &conversation{lastActivity: time.Now()}
		s.speakers[speakerID] = c
	}
	return c
}

func (s *ConversationStore) evictLocked(c *conversation) {
	if len(c.entries) <= s.cap {
		return
	}
	excess := len(c.entries) - s.cap
	c.entries = c.entries[excess:]
}
