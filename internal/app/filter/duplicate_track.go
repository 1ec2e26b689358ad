package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/voicebox/internal/domain/track"
)

// DuplicateTrackFilter checks for duplicate tracks in the queue.
// Detects:
// - Exact reference matches
// - Alternate uploads (normalized title + same uploader)
// Excludes:
// - Cover songs (same title but different uploader)
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already playing or queued, including remasters and alternate uploads by the same uploader"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns which requester types this filter applies to.
func (f *DuplicateTrackFilter) AppliesTo(requesterType track.RequesterType) bool {
	return requesterType == track.RequesterTypeUser
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request, requested track.Track) Result {
	for _, pending := range req.Pending {
		if pending.Track.Reference == requested.Reference {
			return Reject("duplicate_track")
		}
		if isSameSong(pending.Track, requested) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// isSameSong reports whether two tracks are the same song in a different
// version: normalized titles match and the uploader is the same.
func isSameSong(track1, track2 track.Track) bool {
	if normalizeTrackName(track1.Title) != normalizeTrackName(track2.Title) {
		return false
	}
	return isSameUploader(track1, track2)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[]official.*?[\)\]]`), // "(Official Video)", "[Official Audio]"
		regexp.MustCompile(`\s*[\(\[](hd|hq|4k)[\)\]]`),  // "[HD]"
		regexp.MustCompile(`\s*[\(\[]lyrics?.*?[\)\]]`),  // "(Lyrics)"
		regexp.MustCompile(`\s*\(.*?version\)`),          // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),             // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),               // "- Live"
		regexp.MustCompile(`\s*\(live\)`),                // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),       // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),   // "- Single Version"
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = whitespace.ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

// isSameUploader compares uploaders case-insensitively.
// Unknown uploaders never match.
func isSameUploader(track1, track2 track.Track) bool {
	if track1.UploaderName == "" || track2.UploaderName == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(track1.UploaderName), strings.TrimSpace(track2.UploaderName))
}

func init() {
	Register("duplicate_track_filter", func(Deps) Filter {
		return NewDuplicateTrackFilter()
	})
}
