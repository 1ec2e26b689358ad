package playback

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicebox/internal/domain/track"
)

// Failure classes reported by collaborators. Implementations mark their errors
// with these so the control loop and callers can classify them with errors.Is.
var (
	ErrResolution         = errors.New("resolution failure")
	ErrTransport          = errors.New("transport failure")
	ErrContextUnavailable = errors.New("context unavailable")
)

// Resolver turns user queries into tracks and tracks into playable sources.
type Resolver interface {
	// Resolve expands a query (URL or search text) into zero or more tracks.
	// Entries may be partial; invalid ones are dropped by the caller.
	Resolve(ctx context.Context, query string) ([]track.Track, error)
	// ResolvePlayable derives a fresh playable source for a track reference.
	ResolvePlayable(ctx context.Context, reference string) (track.PlayableSource, error)
}

// Sink is an audio transport bound to one context.
// Only the session control loop calls it.
type Sink interface {
	// Play starts playback. The returned channel receives exactly one value
	// (nil on natural end or explicit stop) and is then closed.
	Play(ctx context.Context, src track.PlayableSource) (<-chan error, error)
	Pause() error
	Resume() error
	Stop() error
	IsPlaying() bool
	IsPaused() bool
	// Close disconnects the sink. The sink is unusable afterwards.
	Close() error
}

// Connector attaches a sink to a context.
type Connector interface {
	// Connect returns an error marked with ErrContextUnavailable when the
	// context cannot receive audio.
	Connect(ctx context.Context, contextID string) (Sink, error)
}

// Admission decides whether a resolved track may be appended to a queue.
type Admission interface {
	// Admit returns false and a rejection code when the track must be skipped.
	// pending holds the active track, everything already queued and the
	// entries admitted earlier in the same batch.
	Admit(ctx context.Context, contextID string, requester track.Requester, t track.Track, pending []track.QueuedTrack) (bool, string)
}
