package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/domain/track"
	"github.com/osa030/voicebox/internal/infra/config"
)

type fakeSource struct {
	prefix string
	calls  int
	err    error
}

func (f *fakeSource) Supports(query string) bool {
	return strings.HasPrefix(query, f.prefix)
}

func (f *fakeSource) Resolve(_ context.Context, query string) ([]track.Track, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []track.Track{track.New(f.prefix+"/1", query), track.New(f.prefix+"/2", query)}, nil
}

type fakePlayable struct {
	refs []string
}

func (f *fakePlayable) ResolvePlayable(_ context.Context, reference string) (track.PlayableSource, error) {
	f.refs = append(f.refs, reference)
	return track.PlayableSource{URL: "https://cdn.example.com/" + reference}, nil
}

func TestChain_RoutesToFirstSupportingSource(t *testing.T) {
	spotify := &fakeSource{prefix: "spotify:"}
	fallback := &fakeSource{prefix: ""}
	c := NewChain([]NamedSource{
		{Source: spotify, Name: "spotify"},
		{Source: fallback, Name: "ytdlp"},
	}, &fakePlayable{})

	tracks, err := c.Resolve(context.Background(), "spotify:album:abc")
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
	assert.Equal(t, 1, spotify.calls)
	assert.Equal(t, 0, fallback.calls)

	_, err = c.Resolve(context.Background(), "some song")
	require.NoError(t, err)
	assert.Equal(t, 1, spotify.calls)
	assert.Equal(t, 1, fallback.calls)

	assert.Equal(t, []string{"spotify", "ytdlp"}, c.Sources())
}

func TestChain_SourceErrorIsReturned(t *testing.T) {
	failing := &fakeSource{prefix: "", err: errors.Mark(errors.New("boom"), playback.ErrResolution)}
	c := NewChain([]NamedSource{{Source: failing, Name: "ytdlp"}}, nil)

	_, err := c.Resolve(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, playback.ErrResolution))
	assert.Contains(t, err.Error(), "source ytdlp")
}

func TestChain_NoSupportingSource(t *testing.T) {
	c := NewChain([]NamedSource{{Source: &fakeSource{prefix: "spotify:"}, Name: "spotify"}}, nil)

	_, err := c.Resolve(context.Background(), "https://example.com")
	assert.True(t, errors.Is(err, playback.ErrResolution))

	_, err = c.ResolvePlayable(context.Background(), "ref")
	assert.True(t, errors.Is(err, playback.ErrResolution))
}

func TestChain_ResolvePlayableDelegates(t *testing.T) {
	p := &fakePlayable{}
	c := NewChain(nil, p)

	src, err := c.ResolvePlayable(context.Background(), "artist - title")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/artist - title", src.URL)
	assert.Equal(t, []string{"artist - title"}, p.refs)
}

func TestNewResolverFromConfig(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "")

	cfg, err := config.Parse([]byte("admin:\n  token: secret\n"))
	require.NoError(t, err)

	c, err := NewResolverFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"ytdlp"}, c.Sources())

	cfg.Spotify.ClientID = "id"
	cfg.Spotify.ClientSecret = "secret"
	cfg.Spotify.RefreshToken = "refresh"
	c, err = NewResolverFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"spotify", "ytdlp"}, c.Sources())

	cfg.Resolver.Backend = "unknown"
	_, err = NewResolverFromConfig(context.Background(), cfg)
	assert.Error(t, err)
}

func TestReconnectPolicy(t *testing.T) {
	p := reconnectPolicy(config.OutputConfig{ReconnectDelayMax: 2 * time.Second})
	assert.True(t, p.Enabled)
	assert.True(t, p.Streamed)
	assert.Equal(t, 2*time.Second, p.DelayMax)

	p = reconnectPolicy(config.OutputConfig{DisableReconnect: true, ReconnectDelayMax: 2 * time.Second})
	assert.False(t, p.Enabled)
}
