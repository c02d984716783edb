package auth

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// The Xbox Live and XSTS responses carry a user hash at the same nested
// location. The descent is data-driven so that a shape mismatch is a
// first-class error naming the exact step that failed.

type stepKind int

const (
	stepObject stepKind = iota
	stepArray
)

func (k stepKind) String() string {
	if k == stepObject {
		return "object"
	}
	return "array"
}

// hashStep is one step of the descent: the carrier at this depth must be of
// the given kind, and the next value is found under field (object) or at
// index (array).
type hashStep struct {
	kind  stepKind
	field string
	index int
}

func (s hashStep) String() string {
	if s.kind == stepObject {
		return fmt.Sprintf("key %q", s.field)
	}
	return fmt.Sprintf("index %d", s.index)
}

// xboxHashSteps locates DisplayClaims.xui[0].uhs.
var xboxHashSteps = []hashStep{
	{kind: stepObject, field: "DisplayClaims"},
	{kind: stepObject, field: "xui"},
	{kind: stepArray, index: 0},
	{kind: stepObject, field: "uhs"},
}

func describeKind(r gjson.Result) string {
	switch {
	case r.IsObject():
		return "object"
	case r.IsArray():
		return "array"
	default:
		return r.Type.String()
	}
}

// extractXboxHash walks the response body along xboxHashSteps and returns
// the user hash string. Any kind mismatch, missing key, or short array
// fails with ErrMalformedUpstream; it never returns a silent empty hash.
func extractXboxHash(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: hash carrier is not valid JSON", ErrMalformedUpstream)
	}

	current := gjson.ParseBytes(body)
	for _, step := range xboxHashSteps {
		switch step.kind {
		case stepObject:
			if !current.IsObject() {
				return "", fmt.Errorf("%w: at %s: expected object, got %s",
					ErrMalformedUpstream, step, describeKind(current))
			}
			next := current.Get(step.field)
			if !next.Exists() {
				return "", fmt.Errorf("%w: at %s: key is missing",
					ErrMalformedUpstream, step)
			}
			current = next
		case stepArray:
			if !current.IsArray() {
				return "", fmt.Errorf("%w: at %s: expected array, got %s",
					ErrMalformedUpstream, step, describeKind(current))
			}
			elems := current.Array()
			if step.index >= len(elems) {
				return "", fmt.Errorf("%w: at %s: array has only %d elements",
					ErrMalformedUpstream, step, len(elems))
			}
			current = elems[step.index]
		}
	}

	if current.Type != gjson.String {
		return "", fmt.Errorf("%w: hash location holds %s, not a string",
			ErrMalformedUpstream, describeKind(current))
	}
	if current.String() == "" {
		return "", fmt.Errorf("%w: hash location holds an empty string", ErrMalformedUpstream)
	}
	return current.String(), nil
}
