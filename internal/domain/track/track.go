// Package track provides the Track domain entity.
package track

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrEmptyReference = errors.New("track reference is empty")
	ErrUnavailable    = errors.New("track is unavailable")
)

// Track identifies a piece of media a user asked for.
// The Reference is kept so a playable source can be re-resolved right before
// playback, since resolved stream URLs expire.
type Track struct {
	Reference    string         // Original query or URL
	Title        string         // Display title
	UploaderName string         // Uploader / channel / artist
	Duration     *time.Duration // nil if unknown (live streams, flat entries)
	ThumbnailURL string         // Empty if unknown
	Unavailable  bool           // Set by resolvers for deleted/private entries
	Markets      []string       // Markets the catalog offers the track in; empty if unrestricted
	IsPlayable   *bool          // Catalog playability for the requested market, nil if unknown
}

// RequesterType represents the type of requester.
type RequesterType string

const (
	RequesterTypeUser   RequesterType = "USER"
	RequesterTypeSystem RequesterType = "SYSTEM"
)

// Requester represents the person who requested the track.
type Requester struct {
	ID   string        // Caller supplied identifier
	Name string        // Display name
	Type RequesterType // Type of requester
}

// QueuedTrack represents a track in a session queue.
type QueuedTrack struct {
	Track     Track
	Requester Requester
	AddedAt   time.Time
}

// PlayableSource is a short-lived streamable locator derived from a Track
// immediately before playback. It is never cached across plays.
type PlayableSource struct {
	URL        string
	Title      string
	Headers    http.Header
	Reconnect  ReconnectPolicy
	ResolvedAt time.Time
}

// ReconnectPolicy holds transport-level reconnect hints for a stream.
type ReconnectPolicy struct {
	Enabled  bool
	Streamed bool
	DelayMax time.Duration
}

// DefaultReconnectPolicy mirrors the usual ffmpeg reconnect flags for remote streams.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:  true,
		Streamed: true,
		DelayMax: 5 * time.Second,
	}
}

// New creates a track with the given reference and title.
// An empty title falls back to the reference.
func New(reference, title string) Track {
	reference = strings.TrimSpace(reference)
	title = strings.TrimSpace(title)
	if title == "" {
		title = reference
	}
	return Track{Reference: reference, Title: title}
}

// WithDuration returns a copy of the track with the given duration.
func (t Track) WithDuration(d time.Duration) Track {
	if d <= 0 {
		t.Duration = nil
		return t
	}
	t.Duration = &d
	return t
}

// DurationSeconds returns the duration in whole seconds, or -1 if unknown.
func (t Track) DurationSeconds() int {
	if t.Duration == nil {
		return -1
	}
	return int(t.Duration.Seconds())
}

// IsAvailableInMarket reports whether the track can be played in market.
// IsPlayable wins when the catalog reported it. Tracks without a market
// list are not region-restricted.
func (t Track) IsAvailableInMarket(market string) bool {
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}
	if len(t.Markets) == 0 {
		return true
	}
	for _, m := range t.Markets {
		if strings.EqualFold(m, market) {
			return true
		}
	}
	return false
}

// Validate reports whether the track can be queued.
func (t Track) Validate() error {
	if strings.TrimSpace(t.Reference) == "" {
		return ErrEmptyReference
	}
	if t.Unavailable {
		return errors.Wrapf(ErrUnavailable, "reference %s", t.Reference)
	}
	return nil
}

// Validate reports whether the playable source can be handed to an output sink.
func (p PlayableSource) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return errors.New("playable source has no URL")
	}
	return nil
}
