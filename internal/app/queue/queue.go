// Package queue provides the per-session FIFO track queue.
package queue

import (
	"context"
	"sync"

	"github.com/osa030/voicebox/internal/domain/track"
)

// Queue is an unbounded FIFO of queued tracks.
// Any number of producers may append; a single consumer removes from the head.
type Queue struct {
	mu     sync.Mutex
	items  []track.QueuedTrack
	closed bool

	notify chan struct{} // signalled on append, capacity 1
	done   chan struct{} // closed on Close
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		items:  make([]track.QueuedTrack, 0),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends a track to the tail.
func (q *Queue) Enqueue(qt track.QueuedTrack) {
	q.EnqueueAll([]track.QueuedTrack{qt})
}

// EnqueueAll appends tracks to the tail as one atomic step, so a batch is
// never interleaved with a concurrent caller's batch.
// Appending to a closed queue is a no-op and reports false.
func (q *Queue) EnqueueAll(qts []track.QueuedTrack) bool {
	if len(qts) == 0 {
		return true
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, qts...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue removes and returns the head, waiting until an item is available.
// ok is false if the queue was closed or ctx ended while waiting.
func (q *Queue) Dequeue(ctx context.Context) (qt track.QueuedTrack, ok bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return track.QueuedTrack{}, false
		}
		if len(q.items) > 0 {
			qt = q.items[0]
			q.items[0] = track.QueuedTrack{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return qt, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.done:
			return track.QueuedTrack{}, false
		case <-ctx.Done():
			return track.QueuedTrack{}, false
		}
	}
}

// Snapshot returns an independent copy of the queued tracks, head first.
func (q *Queue) Snapshot() []track.QueuedTrack {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]track.QueuedTrack, len(q.items))
	copy(result, q.items)
	return result
}

// Len returns the number of queued tracks. Advisory only.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and discards pending items.
// Blocked and future Dequeue calls return immediately. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

// CloseIfEmpty closes the queue only if nothing is pending, so a drain
// decision cannot race with a producer that just appended.
func (q *Queue) CloseIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return true
	}
	if len(q.items) > 0 {
		return false
	}
	q.closed = true
	q.items = nil
	close(q.done)
	return true
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
