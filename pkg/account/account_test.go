package account_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/token"
)

const testUUID = "069a79f444e94726a5befca90e38aaf5"

func mustToken(t *testing.T, tok string) token.AccessToken {
	t.Helper()
	at, err := token.New(tok, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return at
}

func testBundle(t *testing.T) *account.Bundle {
	t.Helper()
	profile, err := account.NewProfile("Steve", testUUID, "mc-token")
	require.NoError(t, err)

	b, err := account.NewBundle("player1@example.com",
		mustToken(t, "msal-token"),
		mustToken(t, "xbl-token"),
		mustToken(t, "xsts-token"),
		mustToken(t, "mc-token"),
		profile)
	require.NoError(t, err)
	return b
}

func TestNewProfile(t *testing.T) {
	t.Parallel()

	_, err := account.NewProfile("Steve", testUUID, "mc-token")
	assert.NoError(t, err)

	_, err = account.NewProfile("", testUUID, "mc-token")
	assert.Error(t, err, "empty name")

	_, err = account.NewProfile("Steve", "not-a-uuid", "mc-token")
	assert.Error(t, err, "bad uuid")

	_, err = account.NewProfile("Steve", testUUID, "")
	assert.Error(t, err, "empty token")
}

func TestNewBundleRejectsMismatchedEcho(t *testing.T) {
	t.Parallel()

	profile, err := account.NewProfile("Steve", testUUID, "different-token")
	require.NoError(t, err)

	_, err = account.NewBundle("player1@example.com",
		mustToken(t, "msal-token"),
		mustToken(t, "xbl-token"),
		mustToken(t, "xsts-token"),
		mustToken(t, "mc-token"),
		profile)
	assert.Error(t, err)
}

func TestNewBundleRejectsMissingToken(t *testing.T) {
	t.Parallel()

	profile, err := account.NewProfile("Steve", testUUID, "mc-token")
	require.NoError(t, err)

	_, err = account.NewBundle("player1@example.com",
		token.AccessToken{},
		mustToken(t, "xbl-token"),
		mustToken(t, "xsts-token"),
		mustToken(t, "mc-token"),
		profile)
	assert.Error(t, err)
}

func TestSetMinecraftTokenRewritesEcho(t *testing.T) {
	t.Parallel()

	b := testBundle(t)
	renewed := mustToken(t, "mc-token-2")

	b.SetMinecraftToken(renewed)

	assert.Equal(t, "mc-token-2", b.Minecraft().Token())
	assert.Equal(t, "mc-token-2", b.Profile().Token,
		"profile echo must follow the game token")
}

func TestPerStageSettersTouchOneField(t *testing.T) {
	t.Parallel()

	b := testBundle(t)
	b.SetMSALToken(mustToken(t, "msal-2"))
	assert.Equal(t, "msal-2", b.MSAL().Token())
	assert.Equal(t, "xbl-token", b.XboxLive().Token())
	assert.Equal(t, "mc-token", b.Profile().Token)

	b.SetXboxLiveToken(mustToken(t, "xbl-2"))
	assert.Equal(t, "xbl-2", b.XboxLive().Token())

	b.SetXSTSToken(mustToken(t, "xsts-2"))
	assert.Equal(t, "xsts-2", b.XSTS().Token())
}

func TestClone(t *testing.T) {
	t.Parallel()

	b := testBundle(t)
	clone := b.Clone()

	clone.SetMinecraftToken(mustToken(t, "mc-token-2"))

	assert.Equal(t, "mc-token", b.Minecraft().Token(), "original untouched")
	assert.Equal(t, "mc-token", b.Profile().Token)
	assert.Equal(t, "mc-token-2", clone.Minecraft().Token())
}
