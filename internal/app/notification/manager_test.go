package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicebox/internal/app/playback"
)

type recordingStream struct {
	mu       sync.Mutex
	received []*Notification
	fail     bool
	block    chan struct{}
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("client went away")
	}
	s.received = append(s.received, n)
	return nil
}

func (s *recordingStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *recordingStream) types() []playback.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]playback.EventType, len(s.received))
	for i, n := range s.received {
		out[i] = n.Event.Type
	}
	return out
}

func TestManager_PublishFiltersByContext(t *testing.T) {
	m := NewManager()
	defer m.Close()

	room := &recordingStream{}
	all := &recordingStream{}
	m.Subscribe("room", room)
	m.Subscribe("", all)
	assert.Equal(t, 2, m.SubscriberCount())

	m.Publish(playback.Event{Type: playback.EventTrackStarted, ContextID: "room"})
	m.Publish(playback.Event{Type: playback.EventTrackStarted, ContextID: "other"})
	m.Publish(playback.Event{Type: playback.EventTrackEnded, ContextID: "room"})

	require.Eventually(t, func() bool { return all.count() == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return room.count() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []playback.EventType{playback.EventTrackStarted, playback.EventTrackEnded}, room.types())

	room.mu.Lock()
	assert.Less(t, room.received[0].SequenceNo, room.received[1].SequenceNo)
	room.mu.Unlock()
}

func TestManager_FailingSubscriberIsDropped(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Subscribe("", &recordingStream{fail: true})
	m.Publish(playback.Event{Type: playback.EventQueueEmpty, ContextID: "room"})

	select {
	case <-m.Done(id):
	case <-time.After(time.Second):
		t.Fatal("failing subscriber was not dropped")
	}
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestManager_PublishDoesNotBlock(t *testing.T) {
	m := NewManager()
	defer m.Close()

	stuck := &recordingStream{block: make(chan struct{})}
	defer close(stuck.block)
	m.Subscribe("", stuck)

	start := time.Now()
	for i := 0; i < bufferSize*4; i++ {
		m.Publish(playback.Event{Type: playback.EventStateChanged, ContextID: "room"})
	}
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()

	s := &recordingStream{}
	id := m.Subscribe("room", s)
	m.Unsubscribe(id)
	m.Unsubscribe(id)

	m.Publish(playback.Event{Type: playback.EventTrackStarted, ContextID: "room"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, s.count())
	assert.Equal(t, 0, m.SubscriberCount())

	select {
	case <-m.Done(id):
	default:
		t.Fatal("done channel of unknown subscription should be closed")
	}
}
