package pool

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/token"
)

func anyUser(string) error { return nil }

// testEngine creates an engine over a fresh pool file seeded with n free
// records.
func testEngine(t *testing.T, n int) *Engine {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nydus-allocated.csv")
	engine, err := NewEngine(path, WithUserCheck(anyUser))
	require.NoError(t, err)

	bundles := make([]*account.Bundle, 0, n)
	for i := 1; i <= n; i++ {
		bundles = append(bundles, testBundle(t, i))
	}
	require.NoError(t, engine.Create(bundles))
	return engine
}

func TestNewEngineMissingFile(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(filepath.Join(t.TempDir(), "absent.csv"), WithUserCheck(anyUser))
	require.NoError(t, err)
	assert.Zero(t, engine.Count())
}

func TestNewEngineMalformedLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pool.csv")
	require.NoError(t, os.WriteFile(path, []byte(headerLine()+"\nnot,enough,fields\n"), 0o600))

	_, err := NewEngine(path, WithUserCheck(anyUser))
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestEngineSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 3)
	_, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)

	reloaded, err := NewEngine(engine.Path(), WithUserCheck(anyUser))
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.Count())

	records := reloaded.ViewAll()
	assert.True(t, records[0].Allocated())
	assert.Equal(t, "192.168.1.5", records[0].ClientAddr())
	assert.Equal(t, "alice", records[0].ClientUser())
	assert.False(t, records[1].Allocated())
	assert.False(t, records[2].Allocated())
}

func TestAllocateInsertionOrder(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 3)

	first, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Player1", first.Bundle().Profile().Name)

	second, err := engine.Allocate("192.168.1.6", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Player2", second.Bundle().Profile().Name)
}

// A client asking again gets a fresh account: its old tenancy is released
// and the next free record is handed out instead.
func TestAllocateSameClientRotates(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 3)

	first, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Player1", first.Bundle().Profile().Name)

	second, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Player2", second.Bundle().Profile().Name)

	records := engine.ViewAll()
	assert.False(t, records[0].Allocated(), "previous tenancy is released")
	assert.True(t, records[1].Allocated())
}

// With every other record taken, the record freed within the call is the
// fallback rather than a dead end.
func TestAllocateSameClientFallsBackToOwnRecord(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 2)

	_, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)
	_, err = engine.Allocate("192.168.1.6", "bob")
	require.NoError(t, err)

	again, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Player1", again.Bundle().Profile().Name)
}

func TestAllocateExhaustedPool(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 1)

	_, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)

	_, err = engine.Allocate("192.168.1.6", "bob")
	require.ErrorIs(t, err, ErrNoFreeRecord)

	// The failed request must not disturb the standing tenancy.
	records := engine.ViewAll()
	assert.Equal(t, "192.168.1.5", records[0].ClientAddr())
}

func TestAllocateValidatesInput(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 1)

	_, err := engine.Allocate("not-an-ip", "alice")
	assert.Error(t, err)

	engine.userExists = func(u string) error { return fmt.Errorf("no such user %s", u) }
	_, err = engine.Allocate("192.168.1.5", "ghost")
	assert.Error(t, err)

	assert.False(t, engine.ViewAll()[0].Allocated())
}

func TestAllocateByUUID(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 2)
	uuid := engine.ViewAll()[1].UUID()

	touched, err := engine.AllocateByUUID(uuid, "192.168.1.5", "alice")
	require.NoError(t, err)
	require.Len(t, touched, 1)
	assert.Equal(t, "Player2", touched[0].Bundle().Profile().Name)

	// Reassignment overwrites the standing tenancy.
	touched, err = engine.AllocateByUUID(uuid, "192.168.1.9", "bob")
	require.NoError(t, err)
	require.Len(t, touched, 1)
	assert.Equal(t, "192.168.1.9", touched[0].ClientAddr())

	touched, err = engine.AllocateByUUID("069a79f444e94726a5befca90e38aaf5", "192.168.1.5", "alice")
	require.NoError(t, err)
	assert.Empty(t, touched, "unknown UUID touches nothing")
}

func TestReleaseByUUID(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 2)
	allocated, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)

	released, err := engine.ReleaseByUUID(allocated.UUID())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	released, err = engine.ReleaseByUUID(allocated.UUID())
	require.NoError(t, err)
	assert.Zero(t, released, "already free")
}

func TestReleaseByAddrReleasesAllTenancies(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 3)

	// Force two tenancies onto one address, as the admin CLI can.
	records := engine.ViewAll()
	_, err := engine.AllocateByUUID(records[0].UUID(), "192.168.1.5", "alice")
	require.NoError(t, err)
	_, err = engine.AllocateByUUID(records[1].UUID(), "192.168.1.5", "alice")
	require.NoError(t, err)
	_, err = engine.AllocateByUUID(records[2].UUID(), "192.168.1.6", "bob")
	require.NoError(t, err)

	released, err := engine.ReleaseByAddr("192.168.1.5")
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	records = engine.ViewAll()
	assert.False(t, records[0].Allocated())
	assert.False(t, records[1].Allocated())
	assert.True(t, records[2].Allocated())
}

func TestReleaseExpired(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 2)
	_, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)
	_, err = engine.Allocate("192.168.1.6", "bob")
	require.NoError(t, err)

	// Age the first tenancy past the limit.
	engine.records[0].allocatedAt = time.Now().Add(-3 * time.Hour)

	released, err := engine.ReleaseExpired(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	records := engine.ViewAll()
	assert.False(t, records[0].Allocated())
	assert.True(t, records[1].Allocated())

	_, err = engine.ReleaseExpired(0)
	assert.Error(t, err)
}

func TestViewByUUIDAndAddr(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 2)
	allocated, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)

	byUUID, err := engine.ViewByUUID(allocated.UUID())
	require.NoError(t, err)
	require.Len(t, byUUID, 1)
	assert.Equal(t, allocated.UUID(), byUUID[0].UUID())

	byAddr, err := engine.ViewByAddr("192.168.1.5")
	require.NoError(t, err)
	require.Len(t, byAddr, 1)

	byAddr, err = engine.ViewByAddr("192.168.1.99")
	require.NoError(t, err)
	assert.Empty(t, byAddr)
}

func TestViewReturnsCopies(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 1)
	engine.ViewAll()[0].Release()

	_, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)
	engine.ViewAll()[0].Release()
	assert.True(t, engine.ViewAll()[0].Allocated())
}

func TestCreateRefusesNonEmptyPool(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 1)
	err := engine.Create([]*account.Bundle{testBundle(t, 9)})
	require.ErrorIs(t, err, ErrPoolNotEmpty)
	assert.Equal(t, 1, engine.Count())
}

func TestRefreshBundles(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 2)
	allocated, err := engine.Allocate("192.168.1.5", "alice")
	require.NoError(t, err)

	expiry := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	fresh := testBundle(t, 1)
	renewed, err := token.New("mc-token-renewed", expiry)
	require.NoError(t, err)
	fresh.SetMinecraftToken(renewed)

	refreshed, err := engine.RefreshBundles(map[string]*account.Bundle{
		allocated.Bundle().Username(): fresh,
		"stranger@example.com":        testBundle(t, 9),
		"player2@example.com":         nil,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	records := engine.ViewAll()
	assert.Equal(t, "mc-token-renewed", records[0].Bundle().Minecraft().Token())
	assert.True(t, records[0].Allocated(), "tenancy survives the refresh")
	assert.Equal(t, "mc-token-2", records[1].Bundle().Minecraft().Token())
}

func TestMutateSavesOnlyOnChange(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, 1)

	before, err := os.ReadFile(engine.Path())
	require.NoError(t, err)

	require.NoError(t, engine.Mutate(func(records []*Record) bool {
		return false
	}))
	after, err := os.ReadFile(engine.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, engine.Mutate(func(records []*Record) bool {
		require.NoError(t, records[0].Allocate("192.168.1.5", "alice"))
		return true
	}))
	reloaded, err := NewEngine(engine.Path(), WithUserCheck(anyUser))
	require.NoError(t, err)
	assert.True(t, reloaded.ViewAll()[0].Allocated())
}
