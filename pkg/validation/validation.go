// Package validation provides form checks for the values nydus passes
// between the pool file, the wire protocol, and the auth pipeline.
package validation

import (
	"fmt"
	"net/netip"
	"os/user"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeFormat is the layout used for timestamps stored in the pool file.
const TimeFormat = "02-01-2006 15:04:05"

// XboxTimePrefixFormat is the layout of an upstream platform timestamp up to
// (not including) its fractional seconds.
const XboxTimePrefixFormat = "2006-01-02T15:04:05"

const (
	portMax = 1<<16 - 1

	// Upstream platform timestamps carry 6 or 7 fractional digits.
	xboxFractionMin = 6
	xboxFractionMax = 7
)

var (
	// Email-shaped, which is all a Microsoft account username is required
	// to be: something@something.something, no whitespace.
	microsoftUsernameRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

	// POSIX portable username: must not be confusable with protocol
	// keywords or contain field separators.
	systemUsernameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)
)

// ValidateIPAddr validates a conventional IPv4 dotted-quad address.
func ValidateIPAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("IP address cannot be empty")
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("invalid IP address %q: %w", addr, err)
	}
	if !ip.Is4() {
		return fmt.Errorf("IP address must be IPv4 dotted-quad: %q", addr)
	}
	return nil
}

// ValidatePort validates a decimal port number string (0-65535).
func ValidatePort(port string) error {
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be a decimal number: %q", port)
	}
	if n < 0 || n > portMax {
		return fmt.Errorf("port out of range 0-%d: %d", portMax, n)
	}
	return nil
}

// ValidateSystemUsername validates the form of a local system username.
// It does not check that the account exists; see SystemUserExists.
func ValidateSystemUsername(name string) error {
	if name == "" {
		return fmt.Errorf("system username cannot be empty")
	}
	if !systemUsernameRegex.MatchString(name) {
		return fmt.Errorf("invalid system username: %q", name)
	}
	return nil
}

// SystemUserExists reports whether the named account exists on this host.
func SystemUserExists(name string) error {
	if err := ValidateSystemUsername(name); err != nil {
		return err
	}
	if _, err := user.Lookup(name); err != nil {
		return fmt.Errorf("no such system user %q: %w", name, err)
	}
	return nil
}

// ValidateMicrosoftUsername validates an upstream account username, which is
// an email address.
func ValidateMicrosoftUsername(name string) error {
	if name == "" {
		return fmt.Errorf("Microsoft username cannot be empty")
	}
	if !microsoftUsernameRegex.MatchString(name) {
		return fmt.Errorf("Microsoft username must be email-shaped: %q", name)
	}
	return nil
}

// ValidateMinecraftVersion validates an X.Y.Z numeric version string.
func ValidateMinecraftVersion(version string) error {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return fmt.Errorf("Minecraft version must have three dot-separated parts: %q", version)
	}
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("Minecraft version has an empty part: %q", version)
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return fmt.Errorf("Minecraft version parts must be numeric: %q", version)
			}
		}
	}
	return nil
}

// ValidateMinecraftUUID validates a Minecraft account UUID. Upstream issues
// them as 32 hex digits without hyphens; the hyphenated form is also
// accepted since both appear in the wild.
func ValidateMinecraftUUID(id string) error {
	if err := ValidateOpaqueField(id); err != nil {
		return fmt.Errorf("invalid Minecraft UUID: %w", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid Minecraft UUID %q: %w", id, err)
	}
	return nil
}

// ValidateOpaqueField validates the loose fields (tokens, hashes, display
// names, client identifiers) that end up in the comma-separated pool file:
// non-empty, no whitespace, no commas, no CR/LF.
//
// The real upstream almost certainly has stricter rules for each of these;
// keep this loose until the upstream shape is confirmed.
func ValidateOpaqueField(s string) error {
	if s == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if strings.ContainsAny(s, ", \t\r\n") {
		return fmt.Errorf("field cannot contain commas or whitespace: %q", s)
	}
	return nil
}

// ValidateTimestamp validates a pool-file timestamp string.
func ValidateTimestamp(ts string) error {
	if _, err := time.Parse(TimeFormat, ts); err != nil {
		return fmt.Errorf("invalid timestamp %q (want %s): %w", ts, TimeFormat, err)
	}
	return nil
}

// ValidateXboxTimestamp validates the form of an upstream platform
// timestamp: the fixed prefix, a dot, 6 or 7 fractional digits, and a
// trailing Z. Parsing is done by the auth package; this only checks shape.
func ValidateXboxTimestamp(ts string) error {
	prefix, fraction, ok := strings.Cut(ts, ".")
	if !ok {
		return fmt.Errorf("upstream timestamp missing fractional seconds: %q", ts)
	}
	if _, err := time.Parse(XboxTimePrefixFormat, prefix); err != nil {
		return fmt.Errorf("invalid upstream timestamp prefix %q: %w", ts, err)
	}
	digits, hadSuffix := strings.CutSuffix(fraction, "Z")
	if !hadSuffix {
		return fmt.Errorf("upstream timestamp missing Z suffix: %q", ts)
	}
	if len(digits) < xboxFractionMin || len(digits) > xboxFractionMax {
		return fmt.Errorf("upstream timestamp fraction must be %d or %d digits, got %d: %q",
			xboxFractionMin, xboxFractionMax, len(digits), ts)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("upstream timestamp fraction must be numeric: %q", ts)
		}
	}
	return nil
}

// ValidateClientID validates an identity-provider client identifier.
func ValidateClientID(id string) error {
	if err := ValidateOpaqueField(id); err != nil {
		return fmt.Errorf("invalid client ID: %w", err)
	}
	return nil
}
