package timeutil

import (
	"testing"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeString(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{"5:30", 330, true},
		{" 0:07 ", 7, true},
		{"1:05:30", 3930, true},
		{"90:00", 5400, true},
		{"1:70", 0, false},
		{"1:60:00", 0, false},
		{"abc", 0, false},
		{"1:xx", 0, false},
		{"-1:30", 0, false},
		{"42", 0, false},
		{"1:2:3:4", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseTimeString(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{-5, "0:00"},
		{59.9, "0:59"},
		{330, "5:30"},
		{3600, "1:00:00"},
		{3930, "1:05:30"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.seconds))
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, input := range []string{"0:00", "2:05", "59:59", "1:00:00", "10:10:10"} {
		secs, ok := ParseTimeString(input)
		require.True(t, ok, input)

		again, ok := ParseTimeString(FormatSeconds(float64(secs)))
		require.True(t, ok)
		assert.Equal(t, secs, again, input)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "0:00", FormatClock(0))
	assert.Equal(t, "75:03", FormatClock(4503))
}

func f(v float64) *float64 { return &v }

func TestValidateTimeRange(t *testing.T) {
	tests := []struct {
		name    string
		start   *float64
		end     *float64
		max     float64
		wantMsg string
	}{
		{"valid", f(10), f(70), 100, ""},
		{"unknown duration", f(0), f(600), 0, ""},
		{"missing start", nil, f(5), 100, "Start time is required"},
		{"missing end", f(0), nil, 100, "End time is required"},
		{"negative start", f(-1), f(5), 100, "Start time cannot be negative"},
		{"end before start", f(10), f(5), 100, "End time must be after start time"},
		{"end equals start", f(10), f(10), 100, "End time must be after start time"},
		{"end beyond duration", f(0), f(60), 30, "End time exceeds video duration (0:30)"},
		{"segment too long", f(0), f(1900), 3600, "Segment cannot exceed 30 minutes"},
		{"exactly thirty minutes", f(0), f(1800), 3600, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTimeRange(tt.start, tt.end, tt.max)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, apperror.KindInvalidTimeRange, apperror.KindOf(err))
		})
	}
}

func TestParseRange(t *testing.T) {
	tr, err := ParseRange("", "  ", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, tr.Start)
	assert.Nil(t, tr.End)

	tr, err = ParseRange("1:30", "2:00", 300)
	require.NoError(t, err)
	assert.Equal(t, 90.0, tr.Start)
	require.NotNil(t, tr.End)
	assert.Equal(t, 120.0, *tr.End)

	tests := []struct {
		start, end string
		max        float64
		msg        string
	}{
		{"x", "1:00", 0, "Invalid start time. Use MM:SS"},
		{"0:10", "1:2:3:4", 0, "Invalid end time. Use MM:SS"},
		{"0:10", "", 0, "End time is required"},
		{"", "0:10", 0, "Start time is required"},
		{"1:00", "0:30", 0, "End time must be after start time"},
		{"0:00", "6:00", 300, "End time exceeds video duration (5:00)"},
	}
	for _, tt := range tests {
		_, err := ParseRange(tt.start, tt.end, tt.max)
		require.Error(t, err, tt.msg)
		assert.Equal(t, apperror.KindInvalidTimeRange, apperror.KindOf(err))
		assert.Equal(t, tt.msg, apperror.Message(err))
	}
}
