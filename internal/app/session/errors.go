package session

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/voicebox/internal/app/playback"
)

// Error classes reported to the command surface. No state changes when one is returned.
var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrNotPlaying         = playback.ErrNotPlaying
	ErrNotInContext       = errors.New("requester has not joined the context")
	ErrContextUnavailable = playback.ErrContextUnavailable
	ErrInvalidRequest     = errors.New("invalid request")
	ErrKicked             = errors.New("requester was kicked from the context")
)

// Code returns the result code for err, used to look up user-facing messages.
func Code(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrNotPlaying):
		return "not_playing"
	case errors.Is(err, ErrKicked):
		return "kicked"
	case errors.Is(err, ErrNotInContext):
		return "not_in_context"
	case errors.Is(err, ErrContextUnavailable):
		return "context_unavailable"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "default_error"
	}
}
