package timeutil

import (
	"fmt"
	"math"
	"regexp"

	"github.com/smashers-ai/smashers/internal/apperror"
)

var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/v/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

// ExtractYouTubeID returns the 11 character video ID from a known URL shape.
func ExtractYouTubeID(url string) (string, bool) {
	if url == "" {
		return "", false
	}
	for _, p := range youtubePatterns {
		if m := p.FindStringSubmatch(url); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}

// ValidateYouTubeURL returns the video ID or an InvalidSourceFormat error.
func ValidateYouTubeURL(url string) (string, error) {
	id, ok := ExtractYouTubeID(url)
	if !ok {
		return "", apperror.New(apperror.KindInvalidSourceFormat, "Invalid YouTube URL")
	}
	return id, nil
}

// WatchURL builds a watch link that starts playback at start seconds.
func WatchURL(id string, start float64) string {
	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
	if start > 0 {
		url += fmt.Sprintf("&t=%d", int64(math.Floor(start)))
	}
	return url
}
