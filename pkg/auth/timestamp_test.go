package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseXboxTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			"six_digit_fraction",
			"2025-06-01T10:30:00.123456Z",
			time.Date(2025, 6, 1, 10, 30, 0, 123456000, time.UTC),
		},
		{
			"seven_digit_fraction_truncated",
			"2025-06-01T10:30:00.1234567Z",
			time.Date(2025, 6, 1, 10, 30, 0, 123456000, time.UTC),
		},
		{
			"zero_fraction",
			"2031-12-31T23:59:59.000000Z",
			time.Date(2031, 12, 31, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseXboxTimestamp(tc.input)
			require.NoError(t, err)

			// The 7th digit is discarded, so the parsed instant must be
			// within a microsecond of the literal value.
			diff := got.Sub(tc.want)
			if diff < 0 {
				diff = -diff
			}
			assert.LessOrEqual(t, diff, time.Microsecond, "got %v want %v", got, tc.want)
		})
	}
}

func TestParseXboxTimestampRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"five_digit_fraction", "2025-06-01T10:30:00.12345Z"},
		{"eight_digit_fraction", "2025-06-01T10:30:00.12345678Z"},
		{"no_fraction", "2025-06-01T10:30:00Z"},
		{"no_z", "2025-06-01T10:30:00.123456"},
		{"garbage", "NotAfterAll"},
		{"empty", ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseXboxTimestamp(tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedUpstream)
		})
	}
}
