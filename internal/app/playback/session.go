package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/queue"
	"github.com/osa030/voicebox/internal/domain/track"
	"github.com/osa030/voicebox/internal/infra/metrics"
)

// Errors
var (
	ErrNotPlaying    = errors.New("not playing")
	ErrSessionClosed = errors.New("session is terminated")
)

// Status reports the outcome of a control operation that did not fail.
type Status string

const (
	StatusPaused         Status = "paused"
	StatusAlreadyPaused  Status = "already_paused"
	StatusResumed        Status = "resumed"
	StatusAlreadyPlaying Status = "already_playing"
	StatusSkipped        Status = "skipped"
	StatusNothingToSkip  Status = "nothing_to_skip"
	StatusStopped        Status = "stopped"
)

// Config holds session configuration.
type Config struct {
	IdleGrace   time.Duration // How long an empty queue is awaited before the session ends
	StopTimeout time.Duration // How long to wait for the sink to confirm a stop
	Publisher   Publisher     // Optional event receiver
	Admission   Admission     // Optional enqueue filter
	Metrics     *metrics.Metrics
}

// EnqueueResult reports what an enqueue call appended.
type EnqueueResult struct {
	Titles   []string // Titles actually queued, in order
	Rejected int      // Expanded entries dropped (invalid or filtered)
	Reasons  []string // Rejection code per dropped entry
}

// RejectUnavailable is the rejection code for entries that failed validation.
const RejectUnavailable = "unavailable"

// Count returns the number of queued tracks.
func (r EnqueueResult) Count() int {
	return len(r.Titles)
}

// Info is a point-in-time view of a session.
type Info struct {
	ID        string
	ContextID string
	State     State
	Current   *track.QueuedTrack
	Queued    int
	CreatedAt time.Time
}

type controlOp int

const (
	opPause controlOp = iota
	opResume
	opSkip
)

type controlReply struct {
	status Status
	err    error
}

type controlRequest struct {
	op    controlOp
	reply chan controlReply
}

// activePlay is the rendezvous between control callers and the loop for one play.
type activePlay struct {
	requests chan controlRequest
	ended    chan struct{}
	endOnce  sync.Once
}

// end marks the play as over. Safe to call more than once.
func (p *activePlay) end() {
	p.endOnce.Do(func() { close(p.ended) })
}

// Session owns one queue and one sink and runs the control loop that
// sequences dequeue, resolve, play and await-completion for one context.
type Session struct {
	id          string
	contextID   string
	config      Config
	queue       *queue.Queue
	resolver    Resolver
	sink        Sink
	onTerminate func(*Session)
	createdAt   time.Time

	// admitMu serializes admission and append so every admission decision
	// sees the tracks admitted before it.
	admitMu sync.Mutex

	mu      sync.RWMutex
	state   State
	current *track.QueuedTrack
	active  *activePlay

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewSession creates a session for contextID. The control loop starts on the
// first successful enqueue. onTerminate runs on the loop goroutine right
// before Done is closed.
func NewSession(contextID string, resolver Resolver, sink Sink, config Config, onTerminate func(*Session)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	return &Session{
		id:          uuid.New().String(),
		contextID:   contextID,
		config:      config,
		queue:       queue.New(),
		resolver:    resolver,
		sink:        sink,
		onTerminate: onTerminate,
		createdAt:   time.Now(),
		state:       StateIdle,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// ContextID returns the context the session plays into.
func (s *Session) ContextID() string { return s.contextID }

// Done is closed once the session is terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current playback state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current *track.QueuedTrack
	if s.current != nil {
		c := *s.current
		current = &c
	}
	return Info{
		ID:        s.id,
		ContextID: s.contextID,
		State:     s.state,
		Current:   current,
		Queued:    s.queue.Len(),
		CreatedAt: s.createdAt,
	}
}

// SnapshotQueue returns a copy of the pending tracks, head first.
func (s *Session) SnapshotQueue() []track.QueuedTrack {
	return s.queue.Snapshot()
}

// Enqueue resolves reference into tracks and appends the usable ones as a
// single batch. A reference that resolves to nothing yields an empty result,
// not an error. Starts the control loop if it is not running.
func (s *Session) Enqueue(ctx context.Context, reference string, requester track.Requester) (EnqueueResult, error) {
	if s.queue.Closed() {
		return EnqueueResult{}, ErrSessionClosed
	}

	started := time.Now()
	tracks, err := s.resolver.Resolve(ctx, reference)
	s.config.Metrics.ObserveResolve("resolve", started)
	if err != nil {
		zlog.Warn().Err(err).Str("context", s.contextID).Msgf("playback: nothing resolved: reference=%s", reference)
		return EnqueueResult{}, nil
	}

	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	pending := s.pendingTracks()
	now := time.Now()
	batch := make([]track.QueuedTrack, 0, len(tracks))
	var result EnqueueResult

	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			zlog.Debug().Str("context", s.contextID).Msgf("playback: skipping entry: title=%s reason=%v", t.Title, err)
			result.Rejected++
			result.Reasons = append(result.Reasons, RejectUnavailable)
			continue
		}
		qt := track.QueuedTrack{Track: t, Requester: requester, AddedAt: now}
		if s.config.Admission != nil {
			if ok, code := s.config.Admission.Admit(ctx, s.contextID, requester, t, pending); !ok {
				zlog.Debug().Str("context", s.contextID).Msgf("playback: entry rejected: title=%s code=%s", t.Title, code)
				result.Rejected++
				result.Reasons = append(result.Reasons, code)
				continue
			}
		}
		pending = append(pending, qt)
		batch = append(batch, qt)
		result.Titles = append(result.Titles, t.Title)
	}

	s.config.Metrics.TracksRejected(result.Rejected)
	if len(batch) == 0 {
		return result, nil
	}

	if !s.queue.EnqueueAll(batch) {
		return EnqueueResult{}, ErrSessionClosed
	}
	s.config.Metrics.TracksEnqueued(len(batch))

	zlog.Info().Str("context", s.contextID).Str("session", s.id).
		Msgf("playback: queued tracks: count=%d rejected=%d", len(batch), result.Rejected)

	s.Start()
	return result, nil
}

// Start launches the control loop once. Safe to call repeatedly.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Pause pauses the active track. Pausing a paused track is a no-op.
func (s *Session) Pause(ctx context.Context) (Status, error) {
	return s.control(ctx, opPause)
}

// Resume resumes the active track. Resuming a playing track is a no-op.
func (s *Session) Resume(ctx context.Context) (Status, error) {
	return s.control(ctx, opResume)
}

// Skip ends the playing track and lets the loop advance. With nothing
// playing, including a paused track, it reports StatusNothingToSkip.
func (s *Session) Skip(ctx context.Context) (Status, error) {
	st, err := s.control(ctx, opSkip)
	if errors.Is(err, ErrNotPlaying) {
		return StatusNothingToSkip, nil
	}
	return st, err
}

// Stop terminates the session from any state, discarding the queue and
// disconnecting the sink. It waits for the loop to exit or ctx to end.
// Idempotent.
func (s *Session) Stop(ctx context.Context) (Status, error) {
	s.stopOnce.Do(func() {
		zlog.Info().Str("context", s.contextID).Str("session", s.id).Msg("playback: stop requested")
		s.cancel()
		s.queue.Close()
	})
	// If the loop never ran, run it now so termination goes through one path.
	s.Start()

	select {
	case <-s.done:
		return StatusStopped, nil
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "waiting for session to terminate")
	}
}

func (s *Session) control(ctx context.Context, op controlOp) (Status, error) {
	s.mu.RLock()
	p := s.active
	s.mu.RUnlock()

	if p == nil {
		return "", ErrNotPlaying
	}

	req := controlRequest{op: op, reply: make(chan controlReply, 1)}
	select {
	case p.requests <- req:
	case <-p.ended:
		return "", ErrNotPlaying
	case <-s.done:
		return "", ErrSessionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	// The loop answers every request it accepted unless it dies first.
	select {
	case r := <-req.reply:
		return r.status, r.err
	case <-s.done:
		select {
		case r := <-req.reply:
			return r.status, r.err
		default:
			return "", ErrSessionClosed
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) pendingTracks() []track.QueuedTrack {
	s.mu.RLock()
	var pending []track.QueuedTrack
	if s.current != nil {
		pending = append(pending, *s.current)
	}
	s.mu.RUnlock()

	return append(pending, s.queue.Snapshot()...)
}

func (s *Session) setState(state State, current *track.QueuedTrack, active *activePlay) {
	s.mu.Lock()
	s.state = state
	s.current = current
	s.active = active
	s.mu.Unlock()
}

func (s *Session) setPlayState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) publish(eventType EventType, qt *track.QueuedTrack, reason string) {
	if s.config.Publisher == nil {
		return
	}
	s.config.Publisher.Publish(Event{
		Type:      eventType,
		ContextID: s.contextID,
		SessionID: s.id,
		Track:     qt,
		State:     s.State(),
		Reason:    reason,
		At:        time.Now(),
	})
}

// run is the control loop. It is the only caller of the sink.
func (s *Session) run() {
	defer s.terminate()
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Str("context", s.contextID).Str("session", s.id).Msgf("playback: control loop panic: %v", r)
		}
	}()

	zlog.Debug().Str("context", s.contextID).Str("session", s.id).Msg("playback: control loop started")

	for {
		qt, ok := s.next()
		if !ok {
			return
		}
		s.playOne(qt)
		if s.ctx.Err() != nil {
			return
		}
	}
}

// next waits for the head of the queue. An empty queue is awaited for the
// idle grace period; after that the queue is closed and the session ends.
func (s *Session) next() (track.QueuedTrack, bool) {
	s.setState(StateIdle, nil, nil)

	for {
		ctx, cancel := context.WithTimeout(s.ctx, s.config.IdleGrace)
		qt, ok := s.queue.Dequeue(ctx)
		cancel()
		if ok {
			return qt, true
		}
		if s.ctx.Err() != nil || s.queue.Closed() {
			return track.QueuedTrack{}, false
		}
		if s.queue.CloseIfEmpty() {
			zlog.Info().Str("context", s.contextID).Str("session", s.id).Msg("playback: queue drained")
			s.publish(EventQueueEmpty, nil, "")
			return track.QueuedTrack{}, false
		}
		// A producer appended between the timeout and the close attempt.
	}
}

// playOne resolves and plays a single track, returning when it is over.
// Resolution and transport failures drop the track.
func (s *Session) playOne(qt track.QueuedTrack) {
	s.setState(StateResolving, &qt, nil)

	src, err := s.resolvePlayable(qt.Track.Reference)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		zlog.Warn().Err(err).Str("context", s.contextID).Msgf("playback: dropping track, resolution failed: title=%s", qt.Track.Title)
		s.config.Metrics.TrackFailed(metrics.KindResolution)
		s.publish(EventTrackFailed, &qt, metrics.KindResolution)
		return
	}

	completion, err := s.sink.Play(s.ctx, src)
	if err != nil {
		zlog.Warn().Err(err).Str("context", s.contextID).Msgf("playback: dropping track, sink rejected source: title=%s", qt.Track.Title)
		s.config.Metrics.TrackFailed(metrics.KindTransport)
		s.publish(EventTrackFailed, &qt, metrics.KindTransport)
		return
	}

	p := &activePlay{
		requests: make(chan controlRequest),
		ended:    make(chan struct{}),
	}
	s.setState(StatePlaying, &qt, p)
	s.config.Metrics.TrackPlayed()
	zlog.Info().Str("context", s.contextID).Str("session", s.id).Msgf("playback: track started: title=%s", qt.Track.Title)
	s.publish(EventTrackStarted, &qt, "")

	eventType, reason := s.await(p, completion)

	p.end()
	s.setState(StateIdle, nil, nil)
	s.publish(eventType, &qt, reason)
}

func (s *Session) resolvePlayable(reference string) (track.PlayableSource, error) {
	type result struct {
		src track.PlayableSource
		err error
	}

	ch := make(chan result, 1)
	started := time.Now()
	go func() {
		src, err := s.resolver.ResolvePlayable(s.ctx, reference)
		if err == nil {
			err = src.Validate()
		}
		ch <- result{src: src, err: err}
	}()

	// A resolver that ignores cancellation must not hold up Stop.
	select {
	case r := <-ch:
		s.config.Metrics.ObserveResolve("playable", started)
		return r.src, r.err
	case <-s.ctx.Done():
		return track.PlayableSource{}, s.ctx.Err()
	}
}

// await blocks until the current play completes, serving control requests
// meanwhile. It returns the event describing how the play ended.
func (s *Session) await(p *activePlay, completion <-chan error) (EventType, string) {
	for {
		select {
		case err := <-completion:
			if err != nil {
				zlog.Warn().Err(err).Str("context", s.contextID).Msg("playback: stream ended with error")
				s.config.Metrics.TrackFailed(metrics.KindTransport)
				return EventTrackFailed, metrics.KindTransport
			}
			return EventTrackEnded, ""

		case req := <-p.requests:
			if req.op == opSkip && s.State() == StatePaused {
				req.reply <- controlReply{status: StatusNothingToSkip}
				continue
			}
			if req.op == opSkip {
				s.halt(completion)
				req.reply <- controlReply{status: StatusSkipped}
				return EventTrackSkipped, ""
			}
			req.reply <- s.applyToggle(req.op)

		case <-s.ctx.Done():
			s.halt(completion)
			return EventTrackSkipped, "stopped"
		}
	}
}

func (s *Session) applyToggle(op controlOp) controlReply {
	current := s.State()

	switch op {
	case opPause:
		if current == StatePaused {
			return controlReply{status: StatusAlreadyPaused}
		}
		if err := s.sink.Pause(); err != nil {
			return controlReply{err: errors.Mark(errors.Wrap(err, "failed to pause sink"), ErrTransport)}
		}
		s.setPlayState(StatePaused)
		s.publish(EventStateChanged, nil, "")
		return controlReply{status: StatusPaused}

	case opResume:
		if current == StatePlaying {
			return controlReply{status: StatusAlreadyPlaying}
		}
		if err := s.sink.Resume(); err != nil {
			return controlReply{err: errors.Mark(errors.Wrap(err, "failed to resume sink"), ErrTransport)}
		}
		s.setPlayState(StatePlaying)
		s.publish(EventStateChanged, nil, "")
		return controlReply{status: StatusResumed}
	}
	return controlReply{err: errors.Newf("unknown control op %d", op)}
}

// halt stops the sink and waits for its completion signal.
func (s *Session) halt(completion <-chan error) {
	if err := s.sink.Stop(); err != nil {
		zlog.Warn().Err(err).Str("context", s.contextID).Msg("playback: sink stop failed")
	}

	timer := time.NewTimer(s.config.StopTimeout)
	defer timer.Stop()

	select {
	case <-completion:
	case <-timer.C:
		zlog.Warn().Str("context", s.contextID).Msgf("playback: sink did not confirm stop within %v", s.config.StopTimeout)
	}
}

func (s *Session) terminate() {
	s.cancel()
	s.queue.Close()

	// A play abandoned by a panic still has to release its waiters.
	s.mu.RLock()
	p := s.active
	s.mu.RUnlock()
	if p != nil {
		p.end()
	}

	if err := s.sink.Close(); err != nil {
		zlog.Warn().Err(err).Str("context", s.contextID).Msg("playback: failed to disconnect sink")
	}

	s.setState(StateTerminated, nil, nil)
	if s.onTerminate != nil {
		s.onTerminate(s)
	}

	zlog.Info().Str("context", s.contextID).Str("session", s.id).Msg("playback: session terminated")
	s.publish(EventSessionTerminated, nil, "")
	close(s.done)
}
