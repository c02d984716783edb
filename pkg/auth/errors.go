package auth

import "errors"

// Common errors
var (
	// ErrInteractionRequired is returned when the identity provider needs a
	// human present but the caller disallowed interactive authentication.
	ErrInteractionRequired = errors.New("interactive authentication required")

	// ErrMalformedUpstream is returned when an upstream response is missing
	// a required field or is structurally unexpected.
	ErrMalformedUpstream = errors.New("malformed upstream response")
)
