// Package playback provides the per-context playback session and its control loop.
package playback

// State represents the playback state of a session.
type State int

const (
	StateIdle       State = iota // No active track; waiting on the queue
	StateResolving               // Dequeued a track, waiting on the resolver
	StatePlaying                 // Track is playing
	StatePaused                  // Track is paused
	StateTerminated              // Control loop exited; final
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Active reports whether a track is playing or paused.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}
