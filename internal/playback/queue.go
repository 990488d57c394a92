// Package playback implements the single serialized audio player shared
// across all in-flight tasks.
package playback

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Segment is one playable audio artifact produced by the synthesis
// pipeline, tagged with the task that produced it.
type Segment struct {
	TaskID uint64
	Audio  []byte // synthesized audio blob; the Player encodes it for the voice connection
}

// Player plays a segment to completion or until ctx is cancelled. It
// must return promptly when ctx is done.
type Player interface {
	Play(ctx context.Context, segment *Segment) error
}

// Queue is the single-worker, serialized playback queue (C8). At most
// one segment is playing at any instant (I3); enqueue/clear are safe to
// call from any task's goroutine.
type Queue struct {
	player Player

	mu       sync.Mutex
	queue    []*Segment
	playing  bool
	curCancel context.CancelFunc

	segCh chan struct{}
	once  sync.Once
}

// New builds a Queue backed by the given Player and starts its worker.
func New(player Player) *Queue {
	q := &Queue{
		player: player,
		segCh:  make(chan struct{}, 1),
	}
	go q.run()
	return q
}

// Enqueue appends a segment; if the queue is idle, playback starts.
func (q *Queue) Enqueue(seg *Segment) {
	q.mu.Lock()
	q.queue = append(q.queue, seg)
	q.mu.Unlock()

	select {
	case q.segCh <- struct{}{}:
	default:
	}
}

// IsPlaying reports whether a segment is currently audible.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Len returns the number of segments waiting or playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.queue)
	if q.playing {
		n++
	}
	return n
}

// Clear drops all queued segments and stops the currently playing
// segment, if any, transitioning back to idle.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.queue = nil
	cancel := q.curCancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (q *Queue) run() {
	for range q.segCh {
		q.drain()
	}
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.playing = false
			q.mu.Unlock()
			return
		}
		seg := q.queue[0]
		q.queue = q.queue[1:]
		ctx, cancel := context.WithCancel(context.Background())
		q.curCancel = cancel
		q.playing = true
		q.mu.Unlock()

		if err := q.player.Play(ctx, seg); err != nil {
			log.Warn().Err(err).Uint64("task_id", seg.TaskID).Msg("playback error, abandoning segment")
		}
		cancel()

		q.mu.Lock()
		q.curCancel = nil
		q.mu.Unlock()
	}
}

// Close stops the worker goroutine. The queue must not be used after
// Close returns.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.segCh)
	})
}
