// Package ytdlp resolves queries and playable sources through yt-dlp.
package ytdlp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	goytdlp "github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/domain/track"
)

// Search backends for plain-text queries.
const (
	BackendYtdlp    = "ytdlp"
	BackendYtsearch = "ytsearch"
	BackendYtmusic  = "ytmusic"
)

const (
	entryTemplate    = "%(webpage_url,url)s\t%(uploader,channel)s\t%(duration)s\t%(thumbnail)s\t%(availability)s\t%(title)s"
	playableTemplate = "%(url)s\t%(http_headers)j\t%(title)s"
)

// Config represents yt-dlp resolver configuration.
type Config struct {
	Backend           string
	PlaylistItemLimit int
	Format            string
	CookiesFile       string
	Proxy             string
	Timeout           time.Duration // 0 means no timeout
	RateLimit         float64 // invocations per second, 0 disables
	Reconnect         track.ReconnectPolicy
}

// Resolver implements playback.Resolver on top of the yt-dlp binary.
type Resolver struct {
	cfg     Config
	limiter *rate.Limiter
	search  searchFunc
}

// New creates a resolver. yt-dlp must be on PATH.
func New(cfg Config) (*Resolver, error) {
	if cfg.PlaylistItemLimit <= 0 {
		cfg.PlaylistItemLimit = 50
	}
	if cfg.Format == "" {
		cfg.Format = "bestaudio/best"
	}

	r := &Resolver{cfg: cfg}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	switch cfg.Backend {
	case "", BackendYtdlp:
		r.search = r.searchYtdlp
	case BackendYtsearch:
		r.search = withFallback(searchYtsearch, r.searchYtdlp)
	case BackendYtmusic:
		r.search = withFallback(searchYtmusic, r.searchYtdlp)
	default:
		return nil, errors.Newf("unsupported search backend: %s", cfg.Backend)
	}

	return r, nil
}

// Supports reports true for every query; yt-dlp is the fallback source.
func (r *Resolver) Supports(string) bool {
	return true
}

// Resolve expands a URL (single video or collection) or searches plain text.
// Deleted and private collection entries come back flagged as unavailable.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Mark(errors.New("empty query"), playback.ErrResolution)
	}

	if !isURL(query) {
		t, ok, err := r.search(ctx, query)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []track.Track{t}, nil
	}

	out, err := r.run(ctx, "expand", func(cmd *goytdlp.Command) *goytdlp.Command {
		return cmd.FlatPlaylist().
			YesPlaylist().
			Print(entryTemplate).
			PlaylistItems(fmt.Sprintf("1-%d", r.cfg.PlaylistItemLimit))
	}, query)
	if err != nil {
		return nil, err
	}

	tracks := parseEntries(out)
	zlog.Debug().Str("query", query).Int("entries", len(tracks)).Msg("ytdlp: expanded")
	return tracks, nil
}

// ResolvePlayable derives a fresh stream URL and its request headers.
// Non-URL references (e.g. "artist - title") are searched first.
func (r *Resolver) ResolvePlayable(ctx context.Context, reference string) (track.PlayableSource, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return track.PlayableSource{}, errors.Mark(track.ErrEmptyReference, playback.ErrResolution)
	}

	target := normalizeStreamURL(reference)
	if !isURL(reference) {
		target = "ytsearch1:" + reference
	}

	out, err := r.run(ctx, "playable", func(cmd *goytdlp.Command) *goytdlp.Command {
		return cmd.Format(r.cfg.Format).
			NoPlaylist().
			SkipDownload().
			Print(playableTemplate)
	}, target)
	if err != nil {
		return track.PlayableSource{}, err
	}

	src, err := parsePlayable(out)
	if err != nil {
		return track.PlayableSource{}, errors.Mark(errors.Wrapf(err, "reference %s", reference), playback.ErrResolution)
	}
	src.Reconnect = r.cfg.Reconnect
	src.ResolvedAt = time.Now()
	return src, nil
}

func (r *Resolver) newCommand() *goytdlp.Command {
	cmd := goytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if r.cfg.Proxy != "" {
		cmd = cmd.Proxy(r.cfg.Proxy)
	}
	if r.cfg.CookiesFile != "" {
		cmd = cmd.Cookies(r.cfg.CookiesFile)
	}
	return cmd
}

// run executes one yt-dlp invocation under the rate limiter and timeout.
func (r *Resolver) run(ctx context.Context, op string, configure func(*goytdlp.Command) *goytdlp.Command, args ...string) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", errors.Mark(errors.Wrap(err, "rate limit wait"), playback.ErrResolution)
		}
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := configure(r.newCommand()).Run(ctx, args...)
	if err != nil {
		detail := ""
		if res != nil {
			detail = lastLine(res.Stderr)
		}
		zlog.Warn().Err(err).Str("op", op).Str("stderr", detail).Msg("ytdlp: invocation failed")
		return "", errors.Mark(errors.Wrapf(err, "yt-dlp %s", op), playback.ErrResolution)
	}
	if res == nil {
		return "", nil
	}
	return res.Stdout, nil
}

// withTimeout bounds ctx by the configured timeout. A zero timeout leaves ctx
// as is.
func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
