package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaywire/voicebridge/internal/brain"
	"github.com/relaywire/voicebridge/internal/playback"
)

func sseServer(t *testing.T, chunks []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

type recordingPlayer struct {
	mu       sync.Mutex
	segments []*playback.Segment
}

func (p *recordingPlayer) Play(ctx context.Context, seg *playback.Segment) error {
	p.mu.Lock()
	p.segments = append(p.segments, seg)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.segments)
}

func stubSynth(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

func TestDispatchPlaysSynthesizedSentences(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hello there. "}}]}`,
		`{"choices":[{"delta":{"content":"How can I help?"}}]}`,
	})
	defer srv.Close()

	convos := NewConversationStore(40, time.Hour, nil)
	player := &recordingPlayer{}
	pq := playback.New(player)
	defer pq.Close()
	bc := brain.New(srv.URL, "token", "model", time.Second)

	m := NewManager(convos, pq, bc, stubSynth, nil, nil, true)
	id := m.Dispatch(context.Background(), "speaker1", "hi there")
	assert.NotZero(t, id)

	require.Eventually(t, func() bool {
		return player.count() == 2
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return m.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return convos.Len("speaker1") == 2 // user turn, then assistant turn on completion
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchCallsOnRepliedAfterNonAbortedStream(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Done."}}]}`,
	})
	defer srv.Close()

	convos := NewConversationStore(40, time.Hour, nil)
	player := &recordingPlayer{}
	pq := playback.New(player)
	defer pq.Close()
	bc := brain.New(srv.URL, "token", "model", time.Second)

	var mu sync.Mutex
	var replied []string
	m := NewManager(convos, pq, bc, stubSynth, nil, func(speakerID string) {
		mu.Lock()
		replied = append(replied, speakerID)
		mu.Unlock()
	}, true)
	m.Dispatch(context.Background(), "speaker1", "hi")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(replied) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchQueuesAckWhenTaskAlreadyActive(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial \"}}]}\n\n")
		flusher.Flush()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	convos := NewConversationStore(40, time.Hour, nil)
	player := &recordingPlayer{}
	pq := playback.New(player)
	defer pq.Close()
	bc := brain.New(srv.URL, "token", "model", 5*time.Second)

	m := NewManager(convos, pq, bc, stubSynth, nil, nil, true)
	m.Dispatch(context.Background(), "speaker1", "first question")

	require.Eventually(t, func() bool {
		return m.ActiveCount() == 1
	}, time.Second, 5*time.Millisecond)

	m.Dispatch(context.Background(), "speaker1", "second question")

	require.Eventually(t, func() bool {
		return player.count() >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, AckText, string(player.segments[0].Audio))

	m.CancelAll()
}

func TestDispatchPlaysOneSegmentWhenStreamingDisabled(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hello there. "}}]}`,
		`{"choices":[{"delta":{"content":"How can I help?"}}]}`,
	})
	defer srv.Close()

	convos := NewConversationStore(40, time.Hour, nil)
	player := &recordingPlayer{}
	pq := playback.New(player)
	defer pq.Close()
	bc := brain.New(srv.URL, "token", "model", time.Second)

	m := NewManager(convos, pq, bc, stubSynth, nil, nil, false)
	m.Dispatch(context.Background(), "speaker1", "hi there")

	require.Eventually(t, func() bool {
		return player.count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, string(player.segments[0].Audio), "Hello there.")
	assert.Contains(t, string(player.segments[0].Audio), "How can I help?")
}

type routeAllHandoff struct{ routed []string }

func (r *routeAllHandoff) RouteOrPlay(speakerID string, taskID uint64, text string) bool {
	r.routed = append(r.routed, text)
	return true
}

func TestDispatchRoutesThroughHandoffWhenPresentFalse(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Away message. "}}]}`,
	})
	defer srv.Close()

	convos := NewConversationStore(40, time.Hour, nil)
	player := &recordingPlayer{}
	pq := playback.New(player)
	defer pq.Close()
	bc := brain.New(srv.URL, "token", "model", time.Second)

	router := &routeAllHandoff{}
	m := NewManager(convos, pq, bc, stubSynth, router, nil, true)
	m.Dispatch(context.Background(), "speaker1", "hi")

	require.Eventually(t, func() bool {
		return len(router.routed) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, player.count())
}
