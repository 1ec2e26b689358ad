package ffmpeg

import (
	"sort"
	"strings"

	"github.com/osa030/voicebox/internal/domain/track"
)

// buildArgs assembles the ffmpeg command line for one track.
func buildArgs(src track.PlayableSource, target, format, codec, bitrate string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

	remote := strings.HasPrefix(src.URL, "http://") || strings.HasPrefix(src.URL, "https://")
	if remote && src.Reconnect.Enabled {
		args = append(args, "-reconnect", "1")
		if src.Reconnect.Streamed {
			args = append(args, "-reconnect_streamed", "1")
		}
		if src.Reconnect.DelayMax > 0 {
			args = append(args, "-reconnect_delay_max", seconds(src.Reconnect.DelayMax))
		}
	}

	if remote && len(src.Headers) > 0 {
		keys := make([]string, 0, len(src.Headers))
		for k := range src.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		for _, k := range keys {
			for _, v := range src.Headers[k] {
				sb.WriteString(k)
				sb.WriteString(": ")
				sb.WriteString(v)
				sb.WriteString("\r\n")
			}
		}
		args = append(args, "-headers", sb.String())
	}

	args = append(args, "-re", "-i", src.URL, "-vn")
	if codec != "" {
		args = append(args, "-c:a", codec)
	}
	if bitrate != "" {
		args = append(args, "-b:a", bitrate)
	}
	if format != "" {
		args = append(args, "-f", format)
	}
	return append(args, target)
}
