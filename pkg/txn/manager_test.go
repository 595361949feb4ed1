package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/kvstore/pkg/wal"
)

func openTestWAL(t *testing.T) *wal.WAL {
	t.Helper()
	w, err := wal.Open(filepath.Join(t.TempDir(), "test.wal"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestBeginExecuteCommit(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id, err := m.Begin()
	require.NoError(t, err)
	assert.True(t, m.IsActive(id))

	require.NoError(t, m.ExecuteOpWithOldValue(id, Operation{Type: OpSet, Key: "a", Value: "1"}))
	require.NoError(t, m.Commit(id))

	assert.False(t, m.IsActive(id))
	assert.True(t, w.IsTransactionActive(id) == false)
}

func TestRollbackInvokesUndoInReverseOrder(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id, err := m.Begin()
	require.NoError(t, err)

	require.NoError(t, m.ExecuteOpWithOldValue(id, Operation{Type: OpSet, Key: "a", Value: "1"}))
	require.NoError(t, m.ExecuteOpWithOldValue(id, Operation{Type: OpSet, Key: "a", Value: "2", OldValue: "1"}))

	var steps []UndoStep
	err = m.Rollback(id, func(s UndoStep) error {
		steps = append(steps, s)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assert.Equal(t, UndoSetString, steps[0].Action)
	assert.Equal(t, "1", steps[0].OldValue)
	assert.Equal(t, UndoDeleteKey, steps[1].Action)

	assert.False(t, m.IsActive(id))
}

func TestSAddUndoIsComplementarySingleMember(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.ExecuteOpWithOldValue(id, Operation{Type: OpSAdd, Key: "s", Member: "x"}))

	var steps []UndoStep
	require.NoError(t, m.Rollback(id, func(s UndoStep) error {
		steps = append(steps, s)
		return nil
	}))
	require.Len(t, steps, 1)
	assert.Equal(t, UndoSRem, steps[0].Action)
	assert.Equal(t, "x", steps[0].Member)
}

func TestSRemUndoCarriesFullPreImage(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.ExecuteOpWithOldValue(id, Operation{
		Type:     OpSRem,
		Key:      "s",
		Member:   "x",
		OldValue: `{"type":"set","set":["x","y"]}`,
		Metadata: "set",
	}))

	var steps []UndoStep
	require.NoError(t, m.Rollback(id, func(s UndoStep) error {
		steps = append(steps, s)
		return nil
	}))
	require.Len(t, steps, 1)
	assert.Equal(t, UndoRestoreValue, steps[0].Action)
	assert.Equal(t, "set", steps[0].Metadata)
	assert.NotEmpty(t, steps[0].OldValue)
}

func TestDeleteUndoCarriesFullPreImage(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.ExecuteOpWithOldValue(id, Operation{
		Type:     OpDelete,
		Key:      "k",
		OldValue: `{"type":"string","str":"v"}`,
		Metadata: "string",
	}))

	var steps []UndoStep
	require.NoError(t, m.Rollback(id, func(s UndoStep) error {
		steps = append(steps, s)
		return nil
	}))
	require.Len(t, steps, 1)
	assert.Equal(t, UndoRestoreValue, steps[0].Action)
	assert.Equal(t, "string", steps[0].Metadata)
	assert.NotEmpty(t, steps[0].OldValue)
}

func TestCheckTimeoutsRollsBackStale(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id, err := m.Begin()
	require.NoError(t, err)

	t0 := m.active[id]
	t0.mu.Lock()
	t0.StartTime -= 1000
	t0.mu.Unlock()

	rolledBack := m.CheckTimeouts(30, func(UndoStep) error { return nil })
	require.Len(t, rolledBack, 1)
	assert.Equal(t, id, rolledBack[0])
	assert.False(t, m.IsActive(id))
}

func TestListPendingAndActiveCount(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id1, err := m.Begin()
	require.NoError(t, err)
	id2, err := m.Begin()
	require.NoError(t, err)

	assert.Equal(t, 2, m.ActiveCount())
	assert.ElementsMatch(t, []uint64{id1, id2}, m.ListPending())

	require.NoError(t, m.Commit(id1))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestExecuteOpOnUnknownTransactionFails(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	err := m.ExecuteOp(999, Operation{Type: OpSet, Key: "a"})
	assert.Error(t, err)

	err = m.Commit(999)
	assert.Error(t, err)
}

func TestIDsAreStrictlyIncreasing(t *testing.T) {
	w := openTestWAL(t)
	m := NewManager(w, 1)

	id1, err := m.Begin()
	require.NoError(t, err)
	id2, err := m.Begin()
	require.NoError(t, err)
	assert.Less(t, id1, id2)
}
