package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicebox/internal/domain/track"
)

func queued(ref string) track.QueuedTrack {
	return track.QueuedTrack{Track: track.New(ref, ref)}
}

func refs(qts []track.QueuedTrack) []string {
	out := make([]string, len(qts))
	for i, qt := range qts {
		out[i] = qt.Track.Reference
	}
	return out
}

func TestQueue_FIFO(t *testing.T) {
	q := New()
	q.Enqueue(queued("a"))
	q.EnqueueAll([]track.QueuedTrack{queued("b"), queued("c")})

	ctx := context.Background()
	var got []string
	for i := 0; i < 3; i++ {
		qt, ok := q.Dequeue(ctx)
		require.True(t, ok)
		got = append(got, qt.Track.Reference)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := New()
	result := make(chan string, 1)

	go func() {
		qt, ok := q.Dequeue(context.Background())
		if ok {
			result <- qt.Track.Reference
		}
	}()

	select {
	case <-result:
		t.Fatal("dequeue returned before anything was queued")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue(queued("late"))

	select {
	case ref := <-result:
		assert.Equal(t, "late", ref)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestQueue_CloseUnblocksDequeue(t *testing.T) {
	q := New()
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Dequeue(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not unblock dequeue")
	}

	// future calls return immediately
	_, ok := q.Dequeue(context.Background())
	assert.False(t, ok)
	assert.True(t, q.Closed())

	// close is idempotent and enqueue after close is dropped
	q.Close()
	assert.False(t, q.EnqueueAll([]track.QueuedTrack{queued("x")}))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DequeueHonoursContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueue_SnapshotIsIndependent(t *testing.T) {
	q := New()
	q.EnqueueAll([]track.QueuedTrack{queued("a"), queued("b")})

	snap := q.Snapshot()
	require.Len(t, snap, 2)

	snap[0].Track.Title = "mutated"
	q.Enqueue(queued("c"))
	_, _ = q.Dequeue(context.Background())

	assert.Equal(t, []string{"a", "b"}, refs(snap))
	assert.Equal(t, []string{"b", "c"}, refs(q.Snapshot()))
	assert.Equal(t, "b", q.Snapshot()[0].Track.Title)
}

func TestQueue_ConcurrentBatchesStayContiguous(t *testing.T) {
	q := New()
	const producers = 8
	const batch = 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			items := make([]track.QueuedTrack, batch)
			for i := range items {
				items[i] = queued(fmt.Sprintf("%d-%d", p, i))
			}
			q.EnqueueAll(items)
		}(p)
	}
	wg.Wait()

	all := refs(q.Snapshot())
	require.Len(t, all, producers*batch)

	// every batch appears as one contiguous, ordered run
	for start := 0; start < len(all); start += batch {
		var p int
		_, err := fmt.Sscanf(all[start], "%d-0", &p)
		require.NoError(t, err)
		for i := 0; i < batch; i++ {
			assert.Equal(t, fmt.Sprintf("%d-%d", p, i), all[start+i])
		}
	}
}

func TestQueue_CloseIfEmpty(t *testing.T) {
	q := New()
	q.Enqueue(queued("a"))

	assert.False(t, q.CloseIfEmpty())
	assert.False(t, q.Closed())

	_, ok := q.Dequeue(context.Background())
	require.True(t, ok)

	assert.True(t, q.CloseIfEmpty())
	assert.True(t, q.Closed())
	assert.False(t, q.EnqueueAll([]track.QueuedTrack{queued("b")}))
}
