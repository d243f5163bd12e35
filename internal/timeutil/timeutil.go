package timeutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/pkg/models"
)

// MaxSegmentSeconds is the longest range that may be analysed in one request.
const MaxSegmentSeconds = 30 * 60

// ParseTimeString parses "MM:SS" or "HH:MM:SS" into seconds.
func ParseTimeString(text string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}

	raw := strings.Split(trimmed, ":")
	parts := make([]int, len(raw))
	for i, p := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, false
		}
		parts[i] = n
	}

	switch len(parts) {
	case 2:
		mins, secs := parts[0], parts[1]
		if secs >= 60 {
			return 0, false
		}
		return mins*60 + secs, true
	case 3:
		hrs, mins, secs := parts[0], parts[1], parts[2]
		if mins >= 60 || secs >= 60 {
			return 0, false
		}
		return hrs*3600 + mins*60 + secs, true
	default:
		return 0, false
	}
}

// FormatSeconds renders seconds as H:MM:SS, or M:SS when under an hour.
func FormatSeconds(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		return "0:00"
	}

	total := int(math.Floor(seconds))
	hrs := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	if hrs > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hrs, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// FormatClock renders seconds as M:SS with minutes allowed past 59.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// ValidateTimeRange checks a requested segment. maxDuration of zero means unknown.
func ValidateTimeRange(start, end *float64, maxDuration float64) error {
	if start == nil {
		return apperror.New(apperror.KindInvalidTimeRange, "Start time is required")
	}
	if end == nil {
		return apperror.New(apperror.KindInvalidTimeRange, "End time is required")
	}
	if *start < 0 {
		return apperror.New(apperror.KindInvalidTimeRange, "Start time cannot be negative")
	}
	if *end <= *start {
		return apperror.New(apperror.KindInvalidTimeRange, "End time must be after start time")
	}
	if maxDuration > 0 && *end > maxDuration {
		return apperror.Newf(apperror.KindInvalidTimeRange,
			"End time exceeds video duration (%s)", FormatSeconds(maxDuration))
	}
	if *end-*start > MaxSegmentSeconds {
		return apperror.New(apperror.KindInvalidTimeRange, "Segment cannot exceed 30 minutes")
	}
	return nil
}

// ParseRange reads optional MM:SS bounds and validates them against
// maxDuration. Both blank selects the whole video.
func ParseRange(startText, endText string, maxDuration float64) (models.TimeRange, error) {
	startText, endText = strings.TrimSpace(startText), strings.TrimSpace(endText)
	if startText == "" && endText == "" {
		return models.TimeRange{}, nil
	}

	var start, end *float64
	if startText != "" {
		s, ok := ParseTimeString(startText)
		if !ok {
			return models.TimeRange{}, apperror.New(apperror.KindInvalidTimeRange, "Invalid start time. Use MM:SS")
		}
		v := float64(s)
		start = &v
	}
	if endText != "" {
		e, ok := ParseTimeString(endText)
		if !ok {
			return models.TimeRange{}, apperror.New(apperror.KindInvalidTimeRange, "Invalid end time. Use MM:SS")
		}
		v := float64(e)
		end = &v
	}

	if err := ValidateTimeRange(start, end, maxDuration); err != nil {
		return models.TimeRange{}, err
	}
	return models.TimeRange{Start: *start, End: end}, nil
}
