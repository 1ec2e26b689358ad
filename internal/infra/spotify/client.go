// Package spotify expands Spotify track, album and playlist links into tracks.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/domain/track"
)

// Reference kinds understood by the client.
const (
	KindTrack    = "track"
	KindAlbum    = "album"
	KindPlaylist = "playlist"
)

const pageLimit = 50

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	itemLimit  int
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	ItemLimit    int // max tracks taken from one album or playlist
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	market := cfg.Market
	if market == "" {
		market = "JP"
	}
	itemLimit := cfg.ItemLimit
	if itemLimit <= 0 {
		itemLimit = 50
	}

	return &Client{
		client:     spotify.New(httpClient),
		market:     market,
		itemLimit:  itemLimit,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Supports reports whether query is a Spotify track, album or playlist link.
func (c *Client) Supports(query string) bool {
	kind, _ := parseReference(query)
	return kind != ""
}

// Resolve expands a Spotify link into tracks. Each track's reference is a
// search text ("artist - title") that another resolver turns into audio.
func (c *Client) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	kind, id := parseReference(query)

	var (
		tracks []track.Track
		err    error
	)
	switch kind {
	case KindTrack:
		tracks, err = c.trackByID(ctx, id)
	case KindAlbum:
		tracks, err = c.albumTracks(ctx, id)
	case KindPlaylist:
		tracks, err = c.playlistTracks(ctx, id)
	default:
		return nil, errors.Mark(errors.Newf("not a spotify reference: %s", query), playback.ErrResolution)
	}
	if err != nil {
		return nil, errors.Mark(err, playback.ErrResolution)
	}

	zlog.Debug().Str("kind", kind).Str("id", id).Int("tracks", len(tracks)).Msg("spotify: expanded")
	return tracks, nil
}

// ResolvePlayable is not served by Spotify; audio comes from the search source.
func (c *Client) ResolvePlayable(context.Context, string) (track.PlayableSource, error) {
	return track.PlayableSource{}, errors.Mark(errors.New("spotify does not provide playable sources"), playback.ErrResolution)
}

func (c *Client) trackByID(ctx context.Context, id string) ([]track.Track, error) {
	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	out := convertTrack(result.SimpleTrack, firstImage(result.Album.Images))
	out.IsPlayable = result.IsPlayable
	return []track.Track{out}, nil
}

func (c *Client) albumTracks(ctx context.Context, id string) ([]track.Track, error) {
	var album *spotify.FullAlbum
	err := c.retry(ctx, func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album")
	}

	image := firstImage(album.Images)
	tracks := make([]track.Track, 0, len(album.Tracks.Tracks))
	for _, t := range album.Tracks.Tracks {
		tracks = append(tracks, convertTrack(t, image))
	}

	offset := len(album.Tracks.Tracks)
	for len(tracks) < c.itemLimit && offset < int(album.Tracks.Total) {
		var page *spotify.SimpleTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				spotify.Limit(pageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}
		if len(page.Tracks) == 0 {
			break
		}
		for _, t := range page.Tracks {
			tracks = append(tracks, convertTrack(t, image))
		}
		offset += len(page.Tracks)
	}

	return truncate(tracks, c.itemLimit), nil
}

func (c *Client) playlistTracks(ctx context.Context, id string) ([]track.Track, error) {
	var tracks []track.Track
	offset := 0

	for len(tracks) < c.itemLimit {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(pageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only process tracks (exclude episodes)
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				t := item.Track.Track
				out := convertTrack(t.SimpleTrack, firstImage(t.Album.Images))
				out.IsPlayable = t.IsPlayable
				tracks = append(tracks, out)
			}
		}

		if len(page.Items) < pageLimit {
			break
		}
		offset += pageLimit
	}

	return truncate(tracks, c.itemLimit), nil
}

// convertTrack converts a Spotify track to a searchable domain Track.
func convertTrack(t spotify.SimpleTrack, image string) track.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	out := track.New(searchReference(artists, t.Name), t.Name)
	out.UploaderName = strings.Join(artists, ", ")
	out.ThumbnailURL = image
	if len(t.AvailableMarkets) > 0 {
		out.Markets = make([]string, len(t.AvailableMarkets))
		for i, m := range t.AvailableMarkets {
			out.Markets[i] = string(m)
		}
	}
	return out.WithDuration(time.Duration(t.Duration) * time.Millisecond)
}

// searchReference builds the "artist - title" text used to find the audio.
func searchReference(artists []string, name string) string {
	if len(artists) == 0 || artists[0] == "" {
		return name
	}
	return artists[0] + " - " + name
}

func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

func truncate(tracks []track.Track, n int) []track.Track {
	if len(tracks) > n {
		return tracks[:n]
	}
	return tracks
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// parseReference extracts the kind and ID from a Spotify URI or open.spotify.com URL.
// Anything else yields empty strings.
func parseReference(input string) (kind, id string) {
	input = strings.TrimSpace(input)

	// Handle Spotify URI format: spotify:KIND:ID
	if strings.HasPrefix(input, "spotify:") {
		parts := strings.Split(input, ":")
		if len(parts) == 3 && isKind(parts[1]) && parts[2] != "" {
			return parts[1], parts[2]
		}
		return "", ""
	}

	// Handle URL format: https://open.spotify.com/KIND/ID or https://open.spotify.com/intl-XX/KIND/ID
	if !strings.Contains(input, "open.spotify.com/") {
		return "", ""
	}
	path := strings.SplitN(input, "open.spotify.com/", 2)[1]
	// Remove query parameters and trailing slashes
	path = strings.SplitN(path, "?", 2)[0]
	path = strings.SplitN(path, "#", 2)[0]
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) > 0 && strings.HasPrefix(segments[0], "intl-") {
		segments = segments[1:]
	}
	if len(segments) != 2 || !isKind(segments[0]) || segments[1] == "" {
		return "", ""
	}
	return segments[0], segments[1]
}

func isKind(s string) bool {
	return s == KindTrack || s == KindAlbum || s == KindPlaylist
}
