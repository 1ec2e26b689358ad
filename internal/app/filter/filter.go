// Package filter provides the filter chain that admits resolved tracks into a queue.
package filter

import (
	"context"

	"github.com/osa030/voicebox/internal/domain/track"
)

// Request describes where a track is about to be queued and by whom.
type Request struct {
	ContextID string
	Requester track.Requester
	// Pending holds the active track, the queued tracks and the entries
	// admitted earlier in the same batch.
	Pending []track.QueuedTrack
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "duration_limit_exceeded"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for enqueue filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given requester type.
	AppliesTo(requesterType track.RequesterType) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request, t track.Track) Result
}

// KickLookup reports whether a requester was kicked from a context.
type KickLookup interface {
	IsKicked(contextID, requesterID string) bool
}

// Deps carries the runtime state some filters consult. Zero values are
// allowed; such filters then accept everything.
type Deps struct {
	Kicks KickLookup
}

// Factory builds a filter from its runtime dependencies.
type Factory func(deps Deps) Filter

// registry holds registered filter factories.
var registry = make(map[string]Factory)

// Register registers a filter factory.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]Factory {
	return registry
}
