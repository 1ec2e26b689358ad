// Package registry maps audio contexts to their playback sessions.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/infra/metrics"
)

// Factory builds a session for contextID. onTerminate must be handed to the
// session so it can deregister itself.
type Factory func(ctx context.Context, contextID string, onTerminate func(*playback.Session)) (*playback.Session, error)

// pendingEntry tracks a session under construction so concurrent callers for
// the same context wait for it instead of building a second one.
type pendingEntry struct {
	ready   chan struct{}
	session *playback.Session
	err     error
}

// Registry manages playback sessions with thread-safe access.
// At most one session exists per context.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*playback.Session
	pending  map[string]*pendingEntry
	factory  Factory
	metrics  *metrics.Metrics
}

// New creates a registry that builds sessions with factory.
func New(factory Factory, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*playback.Session),
		pending:  make(map[string]*pendingEntry),
		factory:  factory,
		metrics:  m,
	}
}

// GetOrCreate returns the session for contextID, constructing and registering
// one if none exists. created reports whether this call built it.
// The lock is not held while the factory runs.
func (r *Registry) GetOrCreate(ctx context.Context, contextID string) (s *playback.Session, created bool, err error) {
	for {
		r.mu.Lock()
		if s, ok := r.sessions[contextID]; ok {
			r.mu.Unlock()
			return s, false, nil
		}
		if p, ok := r.pending[contextID]; ok {
			r.mu.Unlock()
			select {
			case <-p.ready:
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
			if p.err != nil {
				return nil, false, p.err
			}
			// Re-check the map; the new session may already have terminated.
			continue
		}

		p := &pendingEntry{ready: make(chan struct{})}
		r.pending[contextID] = p
		r.mu.Unlock()

		p.session, p.err = r.factory(ctx, contextID, r.Remove)

		r.mu.Lock()
		delete(r.pending, contextID)
		if p.err == nil {
			r.sessions[contextID] = p.session
		}
		r.mu.Unlock()
		close(p.ready)

		if p.err != nil {
			return nil, false, errors.Wrapf(p.err, "failed to create session for context %s", contextID)
		}

		r.metrics.SessionStarted()
		zlog.Info().Str("context", contextID).Str("session", p.session.ID()).Msg("registry: session created")
		return p.session, true, nil
	}
}

// Get returns the session for contextID, if any.
func (r *Registry) Get(contextID string) (*playback.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[contextID]
	return s, ok
}

// Remove deregisters s. It is the sessions' terminate hook, so it only
// removes s itself, never a successor registered for the same context.
// Idempotent.
func (r *Registry) Remove(s *playback.Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.ContextID()]
	removed := ok && current == s
	if removed {
		delete(r.sessions, s.ContextID())
	}
	r.mu.Unlock()

	if removed {
		r.metrics.SessionEnded()
		zlog.Info().Str("context", s.ContextID()).Str("session", s.ID()).Msg("registry: session removed")
	}
}

// List returns all registered sessions ordered by context ID.
func (r *Registry) List() []*playback.Session {
	r.mu.RLock()
	result := make([]*playback.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].ContextID() < result[j].ContextID()
	})
	return result
}

// StopAll stops every registered session and waits for them to terminate.
// It returns the number of sessions stopped.
func (r *Registry) StopAll(ctx context.Context) (int, error) {
	sessions := r.List()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *playback.Session) {
			defer wg.Done()
			if _, err := s.Stop(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "failed to stop session for context %s", s.ContextID())
				}
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	return len(sessions), firstErr
}
