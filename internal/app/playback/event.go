package playback

import (
	"time"

	"github.com/osa030/voicebox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted      EventType = iota // Track started playing
	EventTrackEnded                         // Track finished naturally
	EventTrackSkipped                       // Track was skipped
	EventTrackFailed                        // Track dropped (resolution or transport failure)
	EventStateChanged                       // Playback state changed (pause/resume)
	EventQueueEmpty                         // Queue drained after the last track
	EventSessionTerminated                  // Control loop exited
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventTrackFailed:
		return "track_failed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	case EventSessionTerminated:
		return "session_terminated"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type      EventType
	ContextID string
	SessionID string
	Track     *track.QueuedTrack // nil for session level events
	State     State
	Reason    string // failure or termination reason, may be empty
	At        time.Time
}

// Publisher receives session events. Publish must not block.
type Publisher interface {
	Publish(Event)
}
