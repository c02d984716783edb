package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crutech/nydus/pkg/auth"
	"github.com/crutech/nydus/pkg/token"
)

// fakeProvider is an IdentityProvider for tests. Usernames listed in
// cached succeed non-interactively; everything else requires interaction.
type fakeProvider struct {
	cached   map[string]string
	failWith error

	acquired []string
}

func (f *fakeProvider) Acquire(_ context.Context, username string, interactive bool) (token.AccessToken, error) {
	f.acquired = append(f.acquired, username)
	if f.failWith != nil {
		return token.AccessToken{}, f.failWith
	}
	if tok, ok := f.cached[username]; ok {
		return token.New(tok, time.Now().Add(time.Hour))
	}
	if !interactive {
		return token.AccessToken{}, auth.ErrInteractionRequired
	}
	return token.New("interactive-token", time.Now().Add(time.Hour))
}

func TestAuthStream(t *testing.T) {
	t.Parallel()

	p := newPipelineServer(t)
	provider := &fakeProvider{cached: map[string]string{"player1@example.com": "msal-token"}}

	bundle, err := p.client().AuthStream(context.Background(), provider, "player1@example.com", false)
	require.NoError(t, err)

	assert.Equal(t, "player1@example.com", bundle.Username())
	assert.Equal(t, "msal-token", bundle.MSAL().Token())
	assert.Equal(t, "xbl-token", bundle.XboxLive().Token())
	assert.Equal(t, "xsts-token", bundle.XSTS().Token())
	assert.Equal(t, "mc-token", bundle.Minecraft().Token())
	assert.Equal(t, "Steve", bundle.Profile().Name)
	assert.Equal(t, testUUID, bundle.Profile().UUID)
	assert.Equal(t, "mc-token", bundle.Profile().Token)
}

func TestAuthStreamInteractionRequired(t *testing.T) {
	t.Parallel()

	p := newPipelineServer(t)
	provider := &fakeProvider{}

	_, err := p.client().AuthStream(context.Background(), provider, "player1@example.com", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInteractionRequired)
}

func TestAuthStreamDiscardsPartialResults(t *testing.T) {
	t.Parallel()

	p := newPipelineServer(t)
	p.mcResponse = `{"error": "ForbiddenOperationException"}`
	provider := &fakeProvider{cached: map[string]string{"player1@example.com": "msal-token"}}

	bundle, err := p.client().AuthStream(context.Background(), provider, "player1@example.com", false)
	require.Error(t, err)
	assert.Nil(t, bundle)
	assert.ErrorIs(t, err, auth.ErrMalformedUpstream)
}

func TestAuthAll(t *testing.T) {
	t.Parallel()

	p := newPipelineServer(t)
	provider := &fakeProvider{cached: map[string]string{
		"ok1@example.com": "msal-token",
		"ok2@example.com": "msal-token",
	}}

	usernames := []string{"ok1@example.com", "needs-human@example.com", "ok2@example.com"}
	results := p.client().AuthAll(context.Background(), provider, usernames, false)

	require.Len(t, results, 3)
	assert.NotNil(t, results["ok1@example.com"])
	assert.NotNil(t, results["ok2@example.com"])
	assert.Nil(t, results["needs-human@example.com"], "failed username maps to nil")

	// One failure must not stop the siblings from being attempted.
	assert.Equal(t, usernames, provider.acquired)
}

func TestAuthAllNeverFailsAsAWhole(t *testing.T) {
	t.Parallel()

	p := newPipelineServer(t)
	provider := &fakeProvider{failWith: errors.New("identity provider is down")}

	results := p.client().AuthAll(context.Background(), provider,
		[]string{"a@example.com", "b@example.com"}, true)

	require.Len(t, results, 2)
	assert.Nil(t, results["a@example.com"])
	assert.Nil(t, results["b@example.com"])
}
