// Package notification fans playback events out to subscribers.
package notification

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/playback"
)

const (
	sendTimeout = 500 * time.Millisecond
	bufferSize  = 64
)

var errSendTimeout = errors.New("notification send timed out")

// Notification is one event delivered to a subscriber.
type Notification struct {
	SequenceNo uint64
	Event      playback.Event
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id        string
	contextID string // empty receives every context
	stream    Stream
	queue     chan *Notification
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Manager manages notification subscriptions and broadcasting.
// It implements playback.Publisher.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription for contextID (empty for all contexts)
// and returns the subscription ID. Notifications are delivered in order on
// a dedicated goroutine; a subscriber that does not accept a notification
// within the send timeout is dropped.
func (m *Manager) Subscribe(contextID string, stream Stream) string {
	sub := &subscription{
		id:        uuid.New().String(),
		contextID: contextID,
		stream:    stream,
		queue:     make(chan *Notification, bufferSize),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	m.mu.Unlock()

	go m.pump(sub)
	return sub.id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[subscriptionID]
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Done returns a channel closed when the subscription ends.
func (m *Manager) Done(subscriptionID string) <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sub, ok := m.subscriptions[subscriptionID]; ok {
		return sub.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Publish queues the event for every matching subscriber. It never blocks;
// a subscriber whose buffer is full misses the event.
func (m *Manager) Publish(event playback.Event) {
	notification := &Notification{
		SequenceNo: m.NextSequenceNo(),
		Event:      event,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		if sub.contextID != "" && sub.contextID != event.ContextID {
			continue
		}
		select {
		case sub.queue <- notification:
		default:
			zlog.Debug().Str("subscription", sub.id).Msgf("notification: buffer full, dropping %s", event.Type)
		}
	}
}

func (m *Manager) pump(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case n := <-sub.queue:
			if err := m.send(sub, n); err != nil {
				zlog.Debug().Err(err).Str("subscription", sub.id).Msg("notification: dropping subscriber")
				m.Unsubscribe(sub.id)
				return
			}
		}
	}
}

// send delivers one notification with a timeout.
func (m *Manager) send(sub *subscription, n *Notification) error {
	done := make(chan error, 1)
	go func() {
		done <- sub.stream.Send(n)
	}()

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errSendTimeout
	case <-sub.done:
		return nil
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[string]*subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
