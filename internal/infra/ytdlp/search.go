package ytdlp

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	goytdlp "github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/domain/track"
)

const watchURL = "https://www.youtube.com/watch?v="

// searchFunc returns the single best match for a text query.
type searchFunc func(ctx context.Context, query string) (track.Track, bool, error)

// withFallback tries primary and falls back when it errors or finds nothing.
func withFallback(primary, fallback searchFunc) searchFunc {
	return func(ctx context.Context, query string) (track.Track, bool, error) {
		t, ok, err := primary(ctx, query)
		if err != nil {
			zlog.Debug().Err(err).Str("query", query).Msg("ytdlp: search backend failed, falling back")
		}
		if err == nil && ok {
			return t, true, nil
		}
		return fallback(ctx, query)
	}
}

func (r *Resolver) searchYtdlp(ctx context.Context, query string) (track.Track, bool, error) {
	out, err := r.run(ctx, "search", func(cmd *goytdlp.Command) *goytdlp.Command {
		return cmd.FlatPlaylist().Print(entryTemplate)
	}, "ytsearch1:"+query)
	if err != nil {
		return track.Track{}, false, err
	}
	for _, t := range parseEntries(out) {
		if !t.Unavailable {
			return t, true, nil
		}
	}
	return track.Track{}, false, nil
}

func searchYtsearch(ctx context.Context, query string) (track.Track, bool, error) {
	res, err := ytsearch.NewClient(nil).Search(ctx, query)
	if err != nil {
		return track.Track{}, false, errors.Wrap(err, "ytsearch")
	}
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		t := track.New(watchURL+v.VideoID, v.Title)
		t.UploaderName = v.Channel
		return t.WithDuration(parseColonDuration(v.Duration)), true, nil
	}
	return track.Track{}, false, nil
}

func searchYtmusic(_ context.Context, query string) (track.Track, bool, error) {
	res, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return track.Track{}, false, errors.Wrap(err, "ytmusic")
	}
	for _, v := range res.Tracks {
		if v.VideoID == "" {
			continue
		}
		t := track.New(watchURL+v.VideoID, v.Title)
		names := make([]string, 0, len(v.Artists))
		for _, a := range v.Artists {
			names = append(names, a.Name)
		}
		t.UploaderName = strings.Join(names, ", ")
		return t, true, nil
	}
	return track.Track{}, false, nil
}
