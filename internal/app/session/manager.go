// Package session provides the command surface over playback sessions:
// one session per context, created on demand and removed when it ends.
package session

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/app/session/registry"
	"github.com/osa030/voicebox/internal/domain/track"
)

// maxEnqueueAttempts bounds retries when an enqueue races a terminating session.
const maxEnqueueAttempts = 3

// Config represents session manager configuration.
type Config struct {
	Playback    playback.Config
	RequireJoin bool              // enqueue and control require a prior join
	Members     *registry.Members // Shared membership table; a fresh one when nil
}

// Manager routes commands to the playback session of each context.
type Manager struct {
	config    Config
	resolver  playback.Resolver
	connector playback.Connector
	registry  *registry.Registry
	members   *registry.Members
}

// NewManager creates a new session manager.
func NewManager(cfg Config, resolver playback.Resolver, connector playback.Connector) *Manager {
	members := cfg.Members
	if members == nil {
		members = registry.NewMembers()
	}
	m := &Manager{
		config:    cfg,
		resolver:  resolver,
		connector: connector,
		members:   members,
	}
	m.registry = registry.New(m.newSession, cfg.Playback.Metrics)
	return m
}

// newSession attaches a sink to contextID and builds its session.
func (m *Manager) newSession(ctx context.Context, contextID string, onTerminate func(*playback.Session)) (*playback.Session, error) {
	sink, err := m.connector.Connect(ctx, contextID)
	if err != nil {
		if !errors.Is(err, playback.ErrContextUnavailable) {
			err = errors.Mark(err, playback.ErrContextUnavailable)
		}
		return nil, errors.Wrapf(err, "failed to connect output for context %s", contextID)
	}

	zlog.Debug().Str("context", contextID).Msg("session: output connected")
	return playback.NewSession(contextID, m.resolver, sink, m.config.Playback, onTerminate), nil
}

// JoinContext records requester as a member of contextID and makes sure a
// session with an attached output exists. An idle session that never gets a
// track ends after the idle grace period.
func (m *Manager) JoinContext(ctx context.Context, contextID string, requester track.Requester) (*playback.Session, error) {
	if err := validateContextID(contextID); err != nil {
		return nil, err
	}
	if err := m.checkKicked(contextID, requester); err != nil {
		return nil, err
	}

	s, created, err := m.registry.GetOrCreate(ctx, contextID)
	if err != nil {
		return nil, err
	}
	s.Start()

	if requester.ID != "" {
		if _, err := m.members.Join(contextID, requester); err != nil {
			if errors.Is(err, registry.ErrKicked) {
				return nil, errors.Mark(err, ErrKicked)
			}
			return nil, errors.Mark(err, ErrInvalidRequest)
		}
	}

	zlog.Info().Str("context", contextID).Msgf("session: joined: requester=%s created=%t", requester.Name, created)
	return s, nil
}

// LeaveContext removes requester from the members of contextID. The session
// keeps playing for everyone else.
func (m *Manager) LeaveContext(contextID string, requester track.Requester) error {
	if err := validateContextID(contextID); err != nil {
		return err
	}
	if !m.members.Leave(contextID, requester.ID) {
		return errors.Wrapf(ErrNotInContext, "requester %s in context %s", requester.ID, contextID)
	}

	zlog.Info().Str("context", contextID).Msgf("session: left: requester=%s", requester.Name)
	return nil
}

// Kick removes requesterID from contextID and bars it from rejoining or
// controlling playback there. Whether a kicked requester may still enqueue
// is up to the kicked_listener_filter.
func (m *Manager) Kick(contextID, requesterID string) error {
	if err := validateContextID(contextID); err != nil {
		return err
	}
	if err := m.members.Kick(contextID, strings.TrimSpace(requesterID)); err != nil {
		return errors.Mark(err, ErrInvalidRequest)
	}

	zlog.Info().Str("context", contextID).Msgf("session: kicked: requester=%s", requesterID)
	return nil
}

// Enqueue resolves query and appends the result to the context's queue,
// creating the session if none exists. A query that resolves to nothing
// returns an empty result without error.
func (m *Manager) Enqueue(ctx context.Context, contextID, query string, requester track.Requester) (playback.EnqueueResult, error) {
	if err := validateContextID(contextID); err != nil {
		return playback.EnqueueResult{}, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return playback.EnqueueResult{}, errors.Wrap(ErrInvalidRequest, "query is empty")
	}
	if err := m.checkMember(contextID, requester); err != nil {
		return playback.EnqueueResult{}, err
	}

	for attempt := 1; ; attempt++ {
		s, _, err := m.registry.GetOrCreate(ctx, contextID)
		if err != nil {
			return playback.EnqueueResult{}, err
		}

		result, err := s.Enqueue(ctx, query, requester)
		// A session that queued nothing still needs its loop to expire.
		s.Start()
		if err == nil {
			zlog.Info().Str("context", contextID).
				Msgf("session: enqueue: requester=%s query=%q queued=%d rejected=%d", requester.Name, query, result.Count(), result.Rejected)
			return result, nil
		}
		if !errors.Is(err, playback.ErrSessionClosed) || attempt >= maxEnqueueAttempts {
			return playback.EnqueueResult{}, err
		}

		// The session drained while we were resolving; wait for it to leave
		// the registry and retry with a fresh one.
		zlog.Debug().Str("context", contextID).Msgf("session: enqueue raced termination, retrying (attempt %d)", attempt)
		select {
		case <-s.Done():
		case <-ctx.Done():
			return playback.EnqueueResult{}, ctx.Err()
		}
	}
}

// Skip ends the active track of contextID.
func (m *Manager) Skip(ctx context.Context, contextID string, requester track.Requester) (playback.Status, error) {
	s, err := m.activeSession(contextID, requester)
	if err != nil {
		return "", err
	}
	return s.Skip(ctx)
}

// Pause pauses the active track of contextID.
func (m *Manager) Pause(ctx context.Context, contextID string, requester track.Requester) (playback.Status, error) {
	s, err := m.activeSession(contextID, requester)
	if err != nil {
		return "", err
	}
	return s.Pause(ctx)
}

// Resume resumes the paused track of contextID.
func (m *Manager) Resume(ctx context.Context, contextID string, requester track.Requester) (playback.Status, error) {
	s, err := m.activeSession(contextID, requester)
	if err != nil {
		return "", err
	}
	return s.Resume(ctx)
}

// Stop terminates the session of contextID, discarding its queue.
func (m *Manager) Stop(ctx context.Context, contextID string, requester track.Requester) (playback.Status, error) {
	s, err := m.activeSession(contextID, requester)
	if err != nil {
		return "", err
	}
	return s.Stop(ctx)
}

// StopSession terminates the session of contextID without a membership check.
func (m *Manager) StopSession(ctx context.Context, contextID string) (playback.Status, error) {
	s, ok := m.registry.Get(contextID)
	if !ok {
		return "", ErrNoActiveSession
	}
	return s.Stop(ctx)
}

// StopAll terminates every session.
func (m *Manager) StopAll(ctx context.Context) (int, error) {
	n, err := m.registry.StopAll(ctx)
	zlog.Info().Msgf("session: stopped all sessions: count=%d", n)
	return n, err
}

// ListQueue returns the tracks waiting in contextID's queue, head first.
func (m *Manager) ListQueue(contextID string) ([]track.QueuedTrack, error) {
	s, ok := m.registry.Get(contextID)
	if !ok {
		return nil, ErrNoActiveSession
	}
	return s.SnapshotQueue(), nil
}

// Status returns a snapshot of contextID's session.
func (m *Manager) Status(contextID string) (playback.Info, error) {
	s, ok := m.registry.Get(contextID)
	if !ok {
		return playback.Info{}, ErrNoActiveSession
	}
	return s.Info(), nil
}

// Sessions returns a snapshot of every session ordered by context.
func (m *Manager) Sessions() []playback.Info {
	sessions := m.registry.List()
	result := make([]playback.Info, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s.Info())
	}
	return result
}

// Members returns the requesters that joined contextID.
func (m *Manager) Members(contextID string) []registry.Member {
	return m.members.All(contextID)
}

func (m *Manager) activeSession(contextID string, requester track.Requester) (*playback.Session, error) {
	s, ok := m.registry.Get(contextID)
	if !ok {
		return nil, ErrNoActiveSession
	}
	if err := m.checkKicked(contextID, requester); err != nil {
		return nil, err
	}
	if err := m.checkMember(contextID, requester); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) checkKicked(contextID string, requester track.Requester) error {
	if requester.Type == track.RequesterTypeSystem || requester.ID == "" {
		return nil
	}
	if m.members.IsKicked(contextID, requester.ID) {
		return errors.Wrapf(ErrKicked, "requester %s in context %s", requester.ID, contextID)
	}
	return nil
}

func (m *Manager) checkMember(contextID string, requester track.Requester) error {
	if !m.config.RequireJoin || requester.Type == track.RequesterTypeSystem {
		return nil
	}
	if err := m.members.Validate(contextID, requester.ID); err != nil {
		return errors.Wrapf(ErrNotInContext, "requester %s in context %s", requester.ID, contextID)
	}
	return nil
}

func validateContextID(contextID string) error {
	if strings.TrimSpace(contextID) == "" {
		return errors.Wrap(ErrInvalidRequest, "context id is empty")
	}
	return nil
}
