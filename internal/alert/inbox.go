// Package alert holds externally-pushed notifications and delivers
// them as a voice briefing on user presence.
package alert

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority ordering: urgent before normal.
type Priority int

const (
	Normal Priority = iota
	Urgent
)

// Alert is an external notification queued for delivery.
type Alert struct {
	ID         string
	Priority   Priority
	Message    string
	FullDetail string
	Source     string
	CreatedAt  time.Time
}

const (
	DefaultCap = 50
	DefaultTTL = 4 * time.Hour
)

// Inbox is a bounded, TTL'd, priority-ordered store of pending alerts.
// Internally synchronized; safe for concurrent Push/Drain.
type Inbox struct {
	mu  sync.Mutex
	cap int
	ttl time.Duration
	pq  alertHeap
}

// New builds an Inbox with the given cap and TTL.
func New(cap int, ttl time.Duration) *Inbox {
	return &Inbox{cap: cap, ttl: ttl}
}

// Push enqueues a new alert, evicting the oldest normal-priority alert
// first if the inbox is at capacity.
func (b *Inbox) Push(a Alert) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictExpiredLocked()

	if len(b.pq) >= b.cap {
		b.evictOldestNormalLocked()
	}

	heap.Push(&b.pq, &a)
}

// Len reports the number of pending alerts, after expiring stale ones.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictExpiredLocked()
	return len(b.pq)
}

// Drain removes and returns all pending alerts in priority order
// (urgent desc, timestamp asc), marking the batch consumed.
func (b *Inbox) Drain() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictExpiredLocked()

	out := make([]Alert, 0, len(b.pq))
	for b.pq.Len() > 0 {
		a := heap.Pop(&b.pq).(*Alert)
		out = append(out, *a)
	}
	return out
}

func (b *Inbox) evictExpiredLocked() {
	if b.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-b.ttl)
	fresh := b.pq[:0]
	for _, a := range b.pq {
		if a.CreatedAt.After(cutoff) {
			fresh = append(fresh, a)
		}
	}
	b.pq = fresh
	heap.Init(&b.pq)
}

func (b *Inbox) evictOldestNormalLocked() {
	oldestIdx := -1
	var oldestAt time.Time
	for i, a := range b.pq {
		if a.Priority != Normal {
			continue
		}
		if oldestIdx == -1 || a.CreatedAt.Before(oldestAt) {
			oldestIdx = i
			oldestAt = a.CreatedAt
		}
	}
	if oldestIdx == -1 {
		// No normal-priority alert to evict; drop the globally oldest.
		oldestIdx = 0
		for i, a := range b.pq {
			if a.CreatedAt.Before(oldestAt) || i == 0 {
				oldestIdx = i
				oldestAt = a.CreatedAt
			}
		}
	}
	heap.Remove(&b.pq, oldestIdx)
}

// alertHeap orders urgent-first, oldest-first within a priority.
type alertHeap []*Alert

func (h alertHeap) Len() int { return len(h) }
func (h alertHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority // urgent (1) before normal (0)
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}
func (h alertHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *alertHeap) Push(x any)   { *h = append(*h, x.(*Alert)) }
func (h *alertHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
