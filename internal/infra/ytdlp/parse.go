package ytdlp

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicebox/internal/domain/track"
)

// yt-dlp prints NA for missing template fields.
const missing = "NA"

var unavailableTitles = map[string]bool{
	"[Deleted video]": true,
	"[Private video]": true,
}

var unavailableStates = map[string]bool{
	"private":         true,
	"needs_auth":      true,
	"subscriber_only": true,
	"premium_only":    true,
}

// parseEntries parses lines printed with entryTemplate.
func parseEntries(out string) []track.Track {
	var tracks []track.Track
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ps := strings.SplitN(line, "\t", 6)
		if len(ps) < 6 {
			continue
		}

		t := track.New(field(ps[0]), field(ps[5]))
		t.UploaderName = field(ps[1])
		t.ThumbnailURL = field(ps[3])
		t = t.WithDuration(parseSeconds(field(ps[2])))
		t.Unavailable = t.Reference == "" ||
			unavailableTitles[t.Title] ||
			unavailableStates[field(ps[4])]
		tracks = append(tracks, t)
	}
	return tracks
}

// parsePlayable parses the first line printed with playableTemplate.
func parsePlayable(out string) (track.PlayableSource, error) {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ps := strings.SplitN(line, "\t", 3)
		src := track.PlayableSource{URL: field(ps[0])}
		if src.URL == "" {
			return track.PlayableSource{}, errors.New("no stream url for selected format")
		}
		if len(ps) > 1 {
			headers, err := parseHeaders(field(ps[1]))
			if err != nil {
				return track.PlayableSource{}, err
			}
			src.Headers = headers
		}
		if len(ps) > 2 {
			src.Title = field(ps[2])
		}
		return src, nil
	}
	return track.PlayableSource{}, errors.New("yt-dlp printed nothing")
}

func parseHeaders(raw string) (http.Header, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse http headers")
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h, nil
}

func field(s string) string {
	s = strings.TrimSpace(s)
	if s == missing {
		return ""
	}
	return s
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// normalizeStreamURL points YouTube Music links at the regular site,
// which serves the same formats without the music client quirks.
func normalizeStreamURL(s string) string {
	return strings.Replace(s, "://music.youtube.com/", "://www.youtube.com/", 1)
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// parseColonDuration parses "3:20" or "1:05:20".
func parseColonDuration(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
