package media

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/domain/track"
	"github.com/osa030/voicebox/internal/infra/config"
	"github.com/osa030/voicebox/internal/infra/spotify"
	"github.com/osa030/voicebox/internal/infra/ytdlp"
)

// NewResolverFromConfig creates the resolver chain from configuration.
// Spotify links are expanded first when credentials are present; yt-dlp
// handles everything else and provides every playable source.
func NewResolverFromConfig(ctx context.Context, cfg *config.Config) (*Chain, error) {
	yt, err := ytdlp.New(ytdlp.Config{
		Backend:           cfg.Resolver.Backend,
		PlaylistItemLimit: cfg.Resolver.PlaylistItemLimit,
		Format:            cfg.Resolver.Format,
		CookiesFile:       cfg.Resolver.CookiesFile,
		Proxy:             cfg.Resolver.Proxy,
		Timeout:           cfg.Resolver.Timeout,
		RateLimit:         cfg.Resolver.RateLimit,
		Reconnect:         reconnectPolicy(cfg.Output),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create yt-dlp resolver")
	}

	var sources []NamedSource
	if cfg.Spotify.Enabled() {
		sp, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
			ItemLimit:    cfg.Resolver.PlaylistItemLimit,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create spotify client")
		}
		sources = append(sources, NamedSource{Source: sp, Name: "spotify"})
		zlog.Info().Msgf("registered media source: name=spotify market=%s", cfg.Spotify.Market)
	}

	sources = append(sources, NamedSource{Source: yt, Name: "ytdlp"})
	zlog.Info().Msgf("registered media source: name=ytdlp backend=%s", cfg.Resolver.Backend)

	return NewChain(sources, yt), nil
}

func reconnectPolicy(out config.OutputConfig) track.ReconnectPolicy {
	if out.DisableReconnect {
		return track.ReconnectPolicy{}
	}
	p := track.DefaultReconnectPolicy()
	p.DelayMax = out.ReconnectDelayMax
	return p
}
