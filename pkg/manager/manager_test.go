package manager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/kvstore/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Persistence.DataFile = filepath.Join(dir, "snapshot.json")
	cfg.Memory.DiskBasePath = filepath.Join(dir, "cold")
	cfg.Memory.EnableMemoryOptimization = false
	return cfg
}

func TestSetGetRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Set(0, "k", "v")
	require.NoError(t, err)
	got, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

// TestCheckpointReplaySurvivesMultiElementList is the regression test for
// the checkpoint/replay fix: a list with more than one element must come
// back intact, not collapsed to its last-pushed element, after the
// manager reopens against the same WAL.
func TestCheckpointReplaySurvivesMultiElementList(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg)
	require.NoError(t, err)

	_, err = m.RPush(0, "mylist", "a")
	require.NoError(t, err)
	_, err = m.RPush(0, "mylist", "b")
	require.NoError(t, err)
	_, err = m.RPush(0, "mylist", "c")
	require.NoError(t, err)

	require.NoError(t, m.checkpointLocked())
	require.NoError(t, m.wal.Close())

	m2, err := New(cfg)
	require.NoError(t, err)
	defer m2.Close()

	items, err := m2.LRange("mylist", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)
}

func TestCheckpointReplaySurvivesHashAndSet(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg)
	require.NoError(t, err)

	_, err = m.HSet(0, "h", "f1", "v1")
	require.NoError(t, err)
	_, err = m.HSet(0, "h", "f2", "v2")
	require.NoError(t, err)
	_, err = m.SAdd(0, "s", []string{"x"})
	require.NoError(t, err)
	_, err = m.SAdd(0, "s", []string{"y"})
	require.NoError(t, err)

	require.NoError(t, m.checkpointLocked())
	require.NoError(t, m.wal.Close())

	m2, err := New(cfg)
	require.NoError(t, err)
	defer m2.Close()

	all, err := m2.HGetAll("h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, all)

	members, err := m2.SMembers("s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, members)
}

func TestReplayAfterCheckpointAppliesLaterOps(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg)
	require.NoError(t, err)

	_, err = m.RPush(0, "l", "a")
	require.NoError(t, err)
	require.NoError(t, m.checkpointLocked())

	_, err = m.RPush(0, "l", "b")
	require.NoError(t, err)
	_, err = m.LDel(0, "other-untouched")
	require.NoError(t, err)

	require.NoError(t, m.wal.Close())

	m2, err := New(cfg)
	require.NoError(t, err)
	defer m2.Close()

	items, err := m2.LRange("l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestFlushDBClearsAllKeys(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Set(0, "k1", "v1")
	require.NoError(t, err)
	_, err = m.Set(0, "k2", "v2")
	require.NoError(t, err)

	require.NoError(t, m.FlushDB())

	_, ok, err := m.Get("k1")
	require.NoError(t, err)
	assert.False(t, ok)
}
