// Package media composes query sources into a single playback resolver.
package media

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/domain/track"
)

// Source expands the queries it supports into tracks.
type Source interface {
	Supports(query string) bool
	Resolve(ctx context.Context, query string) ([]track.Track, error)
}

// PlayableResolver derives playable sources from track references.
type PlayableResolver interface {
	ResolvePlayable(ctx context.Context, reference string) (track.PlayableSource, error)
}

// NamedSource wraps a source with the name used in logs.
type NamedSource struct {
	Source Source
	Name   string
}

// Chain routes each query to the first source that supports it.
// Playable sources always come from one resolver.
type Chain struct {
	sources  []NamedSource
	playable PlayableResolver
}

var _ playback.Resolver = (*Chain)(nil)

// NewChain creates a new resolver chain.
func NewChain(sources []NamedSource, playable PlayableResolver) *Chain {
	return &Chain{
		sources:  sources,
		playable: playable,
	}
}

// Resolve implements playback.Resolver.
func (c *Chain) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	for _, ns := range c.sources {
		if !ns.Source.Supports(query) {
			continue
		}

		started := time.Now()
		tracks, err := ns.Source.Resolve(ctx, query)
		if err != nil {
			return nil, errors.Wrapf(err, "source %s", ns.Name)
		}
		zlog.Debug().Msgf("media: resolved: source=%s count=%d elapsed=%s", ns.Name, len(tracks), time.Since(started))
		return tracks, nil
	}

	return nil, errors.Mark(errors.Newf("no source supports query %q", query), playback.ErrResolution)
}

// ResolvePlayable implements playback.Resolver.
func (c *Chain) ResolvePlayable(ctx context.Context, reference string) (track.PlayableSource, error) {
	if c.playable == nil {
		return track.PlayableSource{}, errors.Mark(errors.New("no playable resolver configured"), playback.ErrResolution)
	}
	return c.playable.ResolvePlayable(ctx, reference)
}

// Sources returns the configured source names in routing order.
func (c *Chain) Sources() []string {
	names := make([]string, len(c.sources))
	for i, ns := range c.sources {
		names[i] = ns.Name
	}
	return names
}
