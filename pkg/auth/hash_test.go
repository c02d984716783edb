package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractXboxHash(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"Token": "xbl-token",
		"DisplayClaims": {"xui": [{"uhs": "123456789"}]}
	}`)

	hash, err := extractXboxHash(body)
	require.NoError(t, err)
	assert.Equal(t, "123456789", hash)
}

func TestExtractXboxHashShapeMismatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not_json", `not json at all`},
		{"root_is_array", `[{"DisplayClaims": {}}]`},
		{"missing_display_claims", `{"Token": "t"}`},
		{"display_claims_is_string", `{"DisplayClaims": "nope"}`},
		{"xui_missing", `{"DisplayClaims": {}}`},
		{"xui_is_object", `{"DisplayClaims": {"xui": {"uhs": "h"}}}`},
		{"xui_empty_array", `{"DisplayClaims": {"xui": []}}`},
		{"element_is_string", `{"DisplayClaims": {"xui": ["h"]}}`},
		{"uhs_missing", `{"DisplayClaims": {"xui": [{}]}}`},
		{"uhs_is_number", `{"DisplayClaims": {"xui": [{"uhs": 42}]}}`},
		{"uhs_is_object", `{"DisplayClaims": {"xui": [{"uhs": {}}]}}`},
		{"uhs_empty", `{"DisplayClaims": {"xui": [{"uhs": ""}]}}`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := extractXboxHash([]byte(tc.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedUpstream)
		})
	}
}
