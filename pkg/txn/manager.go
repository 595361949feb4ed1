package txn

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/kvstore/pkg/kverrors"
	"github.com/cuemby/kvstore/pkg/log"
	"github.com/cuemby/kvstore/pkg/wal"
)

// UndoAction names the complementary action Rollback asks its caller to
// apply against the store for one recorded operation (§4.7).
type UndoAction string

const (
	UndoNone         UndoAction = "none"
	UndoDeleteKey    UndoAction = "delete_key"
	UndoSetString    UndoAction = "set_string"
	UndoPushFront    UndoAction = "push_front"
	UndoPushBack     UndoAction = "push_back"
	UndoPopFront     UndoAction = "pop_front"
	UndoPopBack      UndoAction = "pop_back"
	UndoHDel         UndoAction = "hdel"
	UndoHSetRestore  UndoAction = "hset_restore"
	UndoSRem         UndoAction = "srem"
	UndoRestoreValue UndoAction = "restore_value"
)

// UndoStep is one complementary action, applied in reverse operation
// order by the store manager during Rollback.
type UndoStep struct {
	Action   UndoAction
	Key      string
	Field    string
	Member   string
	OldValue string
	Metadata string // value-kind tag, meaningful only for UndoRestoreValue
}

// computeUndo derives the complementary action for op (§4.7's Rollback
// rules). Delete/LDel/HDelKey/SRem carry a full JSON pre-image of the
// value they removed (tagged by Metadata), per §9's resolved "rollback
// pre-image" note; every other op's pre-image is a single
// field/member/string, reversible without reconstructing a whole value.
func computeUndo(op Operation) UndoStep {
	switch op.Type {
	case OpSet:
		if op.OldValue != "" {
			return UndoStep{Action: UndoSetString, Key: op.Key, OldValue: op.OldValue}
		}
		return UndoStep{Action: UndoDeleteKey, Key: op.Key}
	case OpLPush:
		return UndoStep{Action: UndoPopFront, Key: op.Key}
	case OpRPush:
		return UndoStep{Action: UndoPopBack, Key: op.Key}
	case OpLPop:
		return UndoStep{Action: UndoPushFront, Key: op.Key, OldValue: op.OldValue}
	case OpRPop:
		return UndoStep{Action: UndoPushBack, Key: op.Key, OldValue: op.OldValue}
	case OpHSet:
		if op.OldValue != "" {
			return UndoStep{Action: UndoHSetRestore, Key: op.Key, Field: op.Field, OldValue: op.OldValue}
		}
		return UndoStep{Action: UndoHDel, Key: op.Key, Field: op.Field}
	case OpHDel:
		return UndoStep{Action: UndoHSetRestore, Key: op.Key, Field: op.Field, OldValue: op.OldValue}
	case OpSAdd:
		return UndoStep{Action: UndoSRem, Key: op.Key, Member: op.Member}
	case OpDelete, OpLDel, OpHDelKey, OpSRem:
		return UndoStep{Action: UndoRestoreValue, Key: op.Key, OldValue: op.OldValue, Metadata: op.Metadata}
	default:
		return UndoStep{Action: UndoNone, Key: op.Key}
	}
}

// Manager allocates transaction ids, tracks the active-transaction
// table, and orchestrates WAL writes for begin/op/commit/rollback
// (§4.7, §5).
type Manager struct {
	mu     sync.RWMutex
	active map[uint64]*Transaction

	nextID uint64 // atomic

	wal *wal.WAL

	opCounter           uint64 // atomic; drives auto-checkpoint
	checkpointThreshold uint64
	checkpointFn        func() error
}

// NewManager seeds the id counter from max(wal.LastSequence()+1,
// bootSeed) per the resolved "transaction id seed" design note: once
// chosen at boot it is a pure in-process atomic counter thereafter.
func NewManager(w *wal.WAL, bootSeed uint64) *Manager {
	seed := w.LastSequence() + 1
	if bootSeed > seed {
		seed = bootSeed
	}
	return &Manager{
		active:              make(map[uint64]*Transaction),
		nextID:              seed,
		wal:                 w,
		checkpointThreshold: wal.DefaultCheckpointInterval,
	}
}

// SetCheckpointFn installs the callback invoked when the operation
// counter reaches the auto-checkpoint threshold (§4.7).
func (m *Manager) SetCheckpointFn(fn func() error) {
	m.checkpointFn = fn
}

// Begin allocates a strictly increasing id, appends a Begin WAL entry,
// and inserts an Active transaction into the active table.
func (m *Manager) Begin() (uint64, error) {
	id := atomic.AddUint64(&m.nextID, 1) - 1

	if err := m.wal.Begin(id); err != nil {
		return 0, fmt.Errorf("txn: append begin entry: %w", err)
	}

	t := &Transaction{ID: id, State: StateActive, StartTime: time.Now().Unix()}

	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()

	return id, nil
}

// Get returns the Active transaction for id, or ok=false.
func (m *Manager) Get(id uint64) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.active[id]
	return t, ok
}

// ExecuteOp records op against txn's buffer only, so Rollback's undo
// list sees it. No WAL entry is written for op, neither here nor by
// Commit, which appends only its Commit marker.
func (m *Manager) ExecuteOp(id uint64, op Operation) error {
	t, ok := m.Get(id)
	if !ok || t.State != StateActive {
		return kverrors.NewTransactionError("transaction %d is not active", id)
	}
	t.AddOperation(op)
	return nil
}

// ExecuteOpWithOldValue appends a WAL entry synchronously (the "undo
// logging" path, §4.7): a Put or Delete record keyed by op's
// type-prefixed key, carrying OldValue/Metadata for rollback. It also
// buffers op on the transaction so Rollback's undo list sees it.
func (m *Manager) ExecuteOpWithOldValue(id uint64, op Operation) error {
	t, ok := m.Get(id)
	if !ok || t.State != StateActive {
		return kverrors.NewTransactionError("transaction %d is not active", id)
	}

	if op.Metadata == "" {
		op.Metadata = defaultMetadata(op.Type)
	}

	cmd := wal.CmdPut
	if op.Type == OpDelete || op.Type == OpLDel || op.Type == OpHDelKey || op.Type == OpHDel || op.Type == OpSRem {
		cmd = wal.CmdDelete
	}

	entry := wal.Entry{
		Command:  cmd,
		Key:      typePrefixedKey(op),
		Value:    op.Value,
		ID:       id,
		OldValue: op.OldValue,
		Metadata: op.Metadata,
	}
	if err := m.wal.Append(entry); err != nil {
		return fmt.Errorf("txn: append op entry: %w", err)
	}

	t.AddOperation(op)
	m.maybeCheckpoint()
	return nil
}

func (m *Manager) maybeCheckpoint() {
	if m.checkpointFn == nil || m.checkpointThreshold == 0 {
		return
	}
	n := atomic.AddUint64(&m.opCounter, 1)
	if n%m.checkpointThreshold == 0 {
		if err := m.checkpointFn(); err != nil {
			log.WithComponent("txn").Warn().Err(err).Msg("auto-checkpoint from transaction manager failed")
		}
	}
}

// Commit appends a Commit WAL entry, marks the transaction Committed,
// and removes it from the active table.
func (m *Manager) Commit(id uint64) error {
	t, ok := m.Get(id)
	if !ok || t.State != StateActive {
		return kverrors.NewTransactionError("transaction %d is not active", id)
	}

	if err := m.wal.Commit(id); err != nil {
		return fmt.Errorf("txn: append commit entry: %w", err)
	}

	t.mu.Lock()
	t.State = StateCommitted
	t.EndTime = time.Now().Unix()
	t.mu.Unlock()

	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	return nil
}

// Rollback appends a Rollback WAL entry, marks the transaction
// RolledBack, removes it from the active table, and invokes apply for
// each of the transaction's operations in reverse order so the caller
// can undo them against the store (§4.7).
func (m *Manager) Rollback(id uint64, apply func(UndoStep) error) error {
	t, ok := m.Get(id)
	if !ok || t.State != StateActive {
		return kverrors.NewTransactionError("transaction %d is not active", id)
	}

	if err := m.wal.Rollback(id); err != nil {
		return fmt.Errorf("txn: append rollback entry: %w", err)
	}

	snap := t.Snapshot()
	for i := len(snap.Operations) - 1; i >= 0; i-- {
		step := computeUndo(snap.Operations[i])
		if step.Action == UndoNone {
			continue
		}
		if err := apply(step); err != nil {
			log.WithComponent("txn").Warn().Err(err).
				Str("key", step.Key).Msg("rollback undo step failed, continuing")
		}
	}

	t.mu.Lock()
	t.State = StateRolledBack
	t.EndTime = time.Now().Unix()
	t.mu.Unlock()

	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	return nil
}

// CheckTimeouts rolls back every Active transaction whose StartTime
// precedes now-timeoutSeconds, logging and continuing past individual
// failures (§4.7's timeout sweeper).
func (m *Manager) CheckTimeouts(timeoutSeconds int64, apply func(UndoStep) error) []uint64 {
	cutoff := time.Now().Unix() - timeoutSeconds

	m.mu.RLock()
	var expired []uint64
	for id, t := range m.active {
		t.mu.Lock()
		start := t.StartTime
		t.mu.Unlock()
		if start < cutoff {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	var rolledBack []uint64
	for _, id := range expired {
		if err := m.Rollback(id, apply); err != nil {
			log.WithComponent("txn").Warn().Err(err).Uint64("txn_id", id).
				Msg("timeout rollback failed")
			continue
		}
		rolledBack = append(rolledBack, id)
	}
	return rolledBack
}

// ListPending returns the ids of currently Active transactions.
func (m *Manager) ListPending() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint64, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	return out
}

// IsActive reports whether id names a currently Active transaction.
func (m *Manager) IsActive(id uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.active[id]
	return ok && t.State == StateActive
}

// ActiveCount returns the number of currently active transactions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
