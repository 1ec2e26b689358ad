package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("YOUTUBE_PROXY", "")

	cfg, err := Parse([]byte("admin:\n  token: secret\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Playback.IdleGrace)
	assert.Equal(t, 5*time.Second, cfg.Playback.StopTimeout)
	assert.Equal(t, "ytdlp", cfg.Resolver.Backend)
	assert.Equal(t, 50, cfg.Resolver.PlaylistItemLimit)
	assert.Equal(t, "bestaudio/best", cfg.Resolver.Format)
	assert.Zero(t, cfg.Resolver.Timeout)
	assert.Empty(t, cfg.Server.CORSOrigins)
	assert.Equal(t, "ffmpeg", cfg.Output.FFmpegPath)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.False(t, cfg.Spotify.Enabled())
	assert.False(t, cfg.Playback.RequireJoin)
	assert.Equal(t, "Nothing to skip.", cfg.Messages.NothingToSkip)
}

func TestParse_Values(t *testing.T) {
	data := []byte(`
server:
  addr: ":9090"
  enqueue_rate: 0.5
  cors_origins: ["https://radio.example.com"]
  hooks:
    on_started: ["echo started"]
admin:
  token: secret
playback:
  idle_grace: 2m
  require_join: true
resolver:
  backend: ytmusic
  playlist_item_limit: 10
  timeout: 45s
output:
  target: "/tmp/out/{context}.ogg"
  allowed_contexts: ["lobby"]
filters:
  duplicate_track_filter:
    enabled: true
messages:
  nothing_found: "no hits"
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://radio.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 45*time.Second, cfg.Resolver.Timeout)
	assert.Equal(t, 0.5, cfg.Server.EnqueueRate)
	assert.Equal(t, []string{"echo started"}, cfg.Server.Hooks.OnStarted)
	assert.Equal(t, 2*time.Minute, cfg.Playback.IdleGrace)
	assert.True(t, cfg.Playback.RequireJoin)
	assert.Equal(t, "ytmusic", cfg.Resolver.Backend)
	assert.Equal(t, 10, cfg.Resolver.PlaylistItemLimit)
	assert.Equal(t, []string{"lobby"}, cfg.Output.AllowedContexts)
	assert.Equal(t, "/tmp/out/lobby.ogg", cfg.OutputTarget("lobby"))
	assert.True(t, cfg.IsFilterEnabled("duplicate_track_filter"))
	assert.False(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.Equal(t, "no hits", cfg.GetMessage("nothing_found"))
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "from-env")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "refresh")
	t.Setenv("YOUTUBE_PROXY", "socks5://127.0.0.1:1080")

	cfg, err := Parse([]byte("admin:\n  token: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Admin.Token)
	assert.True(t, cfg.Spotify.Enabled())
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Resolver.Proxy)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		errMsg string
	}{
		{
			name:   "missing admin token",
			data:   "server:\n  addr: \":8080\"\n",
			errMsg: "Token",
		},
		{
			name:   "unknown resolver backend",
			data:   "admin:\n  token: x\nresolver:\n  backend: soundcloud\n",
			errMsg: "Backend",
		},
		{
			name:   "invalid market length",
			data:   "admin:\n  token: x\nspotify:\n  market: JAPAN\n",
			errMsg: "Market",
		},
		{
			name:   "playlist limit too large",
			data:   "admin:\n  token: x\nresolver:\n  playlist_item_limit: 1000\n",
			errMsg: "PlaylistItemLimit",
		},
		{
			name:   "negative resolver timeout",
			data:   "admin:\n  token: x\nresolver:\n  timeout: -1s\n",
			errMsg: "Timeout",
		},
		{
			name:   "target without placeholder",
			data:   "admin:\n  token: x\noutput:\n  target: /tmp/out.ogg\n",
			errMsg: "{context}",
		},
		{
			name:   "malformed yaml",
			data:   "admin: [",
			errMsg: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ADMIN_TOKEN", "")
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin:\n  token: secret\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Admin.Token)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_GetMessage(t *testing.T) {
	cfg, err := Parse([]byte("admin:\n  token: secret\n"))
	require.NoError(t, err)

	codes := []string{
		"success", "joined", "queued", "nothing_found", "nothing_to_skip", "skipped",
		"paused", "already_paused", "resumed", "already_playing", "stopped",
		"not_playing", "no_active_session", "not_in_context", "context_unavailable",
		"rate_limited", "invalid_request", "duplicate_track", "duration_limit_exceeded",
		"user_pending",
	}
	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			msg := cfg.GetMessage(code)
			assert.NotEmpty(t, msg)
			assert.NotEqual(t, cfg.Messages.DefaultError, msg)
		})
	}

	assert.Equal(t, cfg.Messages.DefaultError, cfg.GetMessage("unknown_code"))
}
