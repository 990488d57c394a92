package handoff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	posted []string
	err    error
}

func (s *recordingSink) PostHandoffText(speakerID string, taskID uint64, text string) error {
	s.posted = append(s.posted, text)
	return s.err
}

func TestRouteOrPlayPassesThroughWhenPresent(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink)
	handled := r.RouteOrPlay("speaker1", 1, "hello")
	assert.False(t, handled)
	assert.Empty(t, sink.posted)
}

func TestRouteOrPlayDivertsWhenAbsent(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink)
	r.SetPresent(false)

	handled := r.RouteOrPlay("speaker1", 1, "hello")
	assert.True(t, handled)
	assert.Equal(t, []string{Marker + "hello"}, sink.posted)
}

func TestRouteOrPlayLogsButStillHandlesOnSinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("channel unavailable")}
	r := New(sink)
	r.SetPresent(false)

	handled := r.RouteOrPlay("speaker1", 1, "hello")
	assert.True(t, handled)
}

func TestPresenceTransitionMidStreamDivertsOnlySubsequentSentences(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink)

	assert.False(t, r.RouteOrPlay("speaker1", 1, "first sentence"))
	r.SetPresent(false)
	assert.True(t, r.RouteOrPlay("speaker1", 1, "second sentence"))
	assert.Equal(t, []string{Marker + "second sentence"}, sink.posted)
}
