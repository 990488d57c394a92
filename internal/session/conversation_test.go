package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendUserAndSnapshotReturnsHistoryAsOfAppend(t *testing.T) {
	s := NewConversationStore(10, time.Hour, nil)

	snap := s.AppendUserAndSnapshot("speaker1", "hello")
	require.Len(t, snap, 1)
	assert.Equal(t, Entry{Role: "user", Content: "hello"}, snap[0])

	s.AppendAssistant("speaker1", "hi there")
	snap2 := s.AppendUserAndSnapshot("speaker1", "what's up")
	require.Len(t, snap2, 3)
	assert.Equal(t, "assistant", snap2[1].Role)
}

func TestEvictsOldestPastCapacity(t *testing.T) {
	s := NewConversationStore(3, time.Hour, nil)

	s.AppendUserAndSnapshot("speaker1", "one")
	s.AppendAssistant("speaker1", "two")
	s.AppendUserAndSnapshot("speaker1", "three")
	snap := s.AppendUserAndSnapshot("speaker1", "four")

	require.Len(t, snap, 3)
	assert.Equal(t, "two", snap[0].Content)
	assert.Equal(t, "four", snap[2].Content)
	assert.Equal(t, 3, s.Len("speaker1"))
}

func TestPruneIdleRemovesStaleSpeakersOnly(t *testing.T) {
	s := NewConversationStore(10, time.Minute, nil)
	s.AppendUserAndSnapshot("stale", "old message")
	s.speakers["stale"].lastActivity = time.Now().Add(-time.Hour)
	s.AppendUserAndSnapshot("fresh", "recent message")

	removed := s.PruneIdle(time.Now())

	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, s.Len("stale"))
	assert.Equal(t, 1, s.Len("fresh"))
}
