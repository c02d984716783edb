package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/crutech/nydus/pkg/validation"
)

// Platform timestamps look like 2025-06-01T10:30:00.1234567Z: fractional
// seconds of 6 or 7 digits followed by a literal Z. Go's time package only
// parses fixed-width fractions, so the fraction is normalised to exactly
// six digits (truncating the 7th when present) before parsing.
const xboxTimeFormat = validation.XboxTimePrefixFormat + ".000000Z"

// parseXboxTimestamp parses an upstream platform timestamp. Fractions
// shorter than 6 or longer than 7 digits are rejected.
func parseXboxTimestamp(ts string) (time.Time, error) {
	if err := validation.ValidateXboxTimestamp(ts); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedUpstream, err)
	}

	// Validation guarantees the shape: prefix, dot, 6-7 digits, Z.
	dot := strings.LastIndex(ts, ".")
	prefix := ts[:dot]
	fraction := strings.TrimSuffix(ts[dot+1:], "Z")
	if len(fraction) > 6 {
		fraction = fraction[:6]
	}

	parsed, err := time.Parse(xboxTimeFormat, fmt.Sprintf("%s.%sZ", prefix, fraction))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedUpstream, err)
	}
	return parsed, nil
}
