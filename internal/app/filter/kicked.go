package filter

import (
	"context"

	"github.com/osa030/voicebox/internal/domain/track"
)

// KickedFilter rejects requests from requesters kicked out of the context.
type KickedFilter struct {
	kicks KickLookup
}

// NewKickedFilter creates a KickedFilter backed by kicks. A nil lookup
// accepts everyone.
func NewKickedFilter(kicks KickLookup) *KickedFilter {
	return &KickedFilter{kicks: kicks}
}

func (f *KickedFilter) Name() string {
	return "kicked_listener_filter"
}

func (f *KickedFilter) Description() string {
	return "Rejects requests from requesters kicked out of the context"
}

func (f *KickedFilter) ReturnCodes() []string {
	return []string{"kicked"}
}

func (f *KickedFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *KickedFilter) AppliesTo(requesterType track.RequesterType) bool {
	// System-generated tracks cannot be kicked
	return requesterType == track.RequesterTypeUser
}

func (f *KickedFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.kicks != nil && f.kicks.IsKicked(req.ContextID, req.Requester.ID) {
		return Reject("kicked")
	}
	return Accept()
}

func init() {
	Register("kicked_listener_filter", func(deps Deps) Filter {
		return NewKickedFilter(deps.Kicks)
	})
}
