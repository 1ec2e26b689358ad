package ffmpeg

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/voicebox/internal/domain/track"
)

func TestBuildArgs(t *testing.T) {
	headers := http.Header{}
	headers.Set("User-Agent", "Mozilla/5.0")
	headers.Set("Accept", "*/*")

	tests := []struct {
		name     string
		src      track.PlayableSource
		expected []string
	}{
		{
			name: "remote with headers and reconnect",
			src: track.PlayableSource{
				URL:       "https://rr1.googlevideo.com/videoplayback",
				Headers:   headers,
				Reconnect: track.ReconnectPolicy{Enabled: true, Streamed: true, DelayMax: 5 * time.Second},
			},
			expected: []string{
				"-hide_banner", "-loglevel", "error", "-nostdin",
				"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
				"-headers", "Accept: */*\r\nUser-Agent: Mozilla/5.0\r\n",
				"-re", "-i", "https://rr1.googlevideo.com/videoplayback", "-vn",
				"-c:a", "libopus", "-b:a", "128k", "-f", "ogg",
				"icecast://source:pw@host:8000/lobby",
			},
		},
		{
			name: "reconnect disabled",
			src: track.PlayableSource{
				URL: "https://cdn.example.com/a.mp3",
			},
			expected: []string{
				"-hide_banner", "-loglevel", "error", "-nostdin",
				"-re", "-i", "https://cdn.example.com/a.mp3", "-vn",
				"-c:a", "libopus", "-b:a", "128k", "-f", "ogg",
				"icecast://source:pw@host:8000/lobby",
			},
		},
		{
			name: "local file ignores network options",
			src: track.PlayableSource{
				URL:       "/music/a.flac",
				Headers:   headers,
				Reconnect: track.DefaultReconnectPolicy(),
			},
			expected: []string{
				"-hide_banner", "-loglevel", "error", "-nostdin",
				"-re", "-i", "/music/a.flac", "-vn",
				"-c:a", "libopus", "-b:a", "128k", "-f", "ogg",
				"icecast://source:pw@host:8000/lobby",
			},
		},
		{
			name: "sub-second delay rounds up",
			src: track.PlayableSource{
				URL:       "http://cdn.example.com/a.mp3",
				Reconnect: track.ReconnectPolicy{Enabled: true, DelayMax: 200 * time.Millisecond},
			},
			expected: []string{
				"-hide_banner", "-loglevel", "error", "-nostdin",
				"-reconnect", "1", "-reconnect_delay_max", "1",
				"-re", "-i", "http://cdn.example.com/a.mp3", "-vn",
				"-c:a", "libopus", "-b:a", "128k", "-f", "ogg",
				"icecast://source:pw@host:8000/lobby",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildArgs(tt.src, "icecast://source:pw@host:8000/lobby", "ogg", "libopus", "128k")
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildArgs_OmitsEmptyEncoderOptions(t *testing.T) {
	got := buildArgs(track.PlayableSource{URL: "/a.wav"}, "/tmp/out.wav", "", "", "")
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-re", "-i", "/a.wav", "-vn", "/tmp/out.wav"}, got)
}
