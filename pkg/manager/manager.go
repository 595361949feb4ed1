// Package manager implements the store manager (C8): the concurrent
// facade around the single-tenant engine. It owns the one exclusive
// lock guarding the Store (§5), wraps every mutating command in a
// single-operation transaction so exactly one code path writes to the
// WAL (§9's resolved "WAL-for-every-mutation" model), offloads and
// loads cold keys to per-key disk files, saves and restores snapshots,
// and runs the background expiry/offload sweeper.
package manager

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/kvstore/pkg/config"
	"github.com/cuemby/kvstore/pkg/events"
	"github.com/cuemby/kvstore/pkg/log"
	"github.com/cuemby/kvstore/pkg/memory"
	"github.com/cuemby/kvstore/pkg/metrics"
	"github.com/cuemby/kvstore/pkg/store"
	"github.com/cuemby/kvstore/pkg/txn"
	"github.com/cuemby/kvstore/pkg/types"
	"github.com/cuemby/kvstore/pkg/wal"
)

// Manager is the concurrent facade wiring the Store, WAL, transaction
// manager, and memory manager together behind one exclusive lock.
type Manager struct {
	mu    sync.Mutex
	store *store.Store

	wal *wal.WAL
	txn *txn.Manager

	cfg      *config.Config
	pressure memory.Pressure

	broker *events.Broker

	running int32 // atomic; cleared to request shutdown

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New wires a Manager from cfg: opens the WAL, recovers from the
// latest checkpoint plus replay, then overlays the snapshot file if
// newer data wasn't already reconstructed from the WAL (first boot with
// an empty WAL falls back to the snapshot alone).
func New(cfg *config.Config) (*Manager, error) {
	s := store.New()
	s.DefaultTTLEnabled = cfg.Storage.EnableDefaultExpiry
	s.DefaultTTLSeconds = cfg.Storage.DefaultExpirySeconds

	walDir := filepath.Join(filepath.Dir(cfg.Persistence.DataFile), "wal")
	w, err := wal.Open(filepath.Join(walDir, "wal.log"))
	if err != nil {
		return nil, fmt.Errorf("manager: open wal: %w", err)
	}

	recoveredFromWAL, err := recoverFromWAL(s, w)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("manager: recover wal: %w", err)
	}
	if !recoveredFromWAL {
		if err := s.LoadFromFile(cfg.Persistence.DataFile); err != nil {
			w.Close()
			return nil, fmt.Errorf("manager: load snapshot: %w", err)
		}
	}

	if cfg.Memory.DiskBasePath != "" {
		if err := os.MkdirAll(cfg.Memory.DiskBasePath, 0o755); err != nil {
			log.WithComponent("manager").Warn().Err(err).
				Msg("could not create cold-key disk directory")
		}
	}

	broker := events.NewBroker()
	broker.Start()

	txnMgr := txn.NewManager(w, uint64(time.Now().UnixNano()))

	m := &Manager{
		store:     s,
		wal:       w,
		txn:       txnMgr,
		cfg:       cfg,
		broker:    broker,
		running:   1,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	// No sweeper runs until StartSweeper, so Close has nothing to wait for.
	close(m.sweepDone)
	txnMgr.SetCheckpointFn(m.checkpointLocked)

	return m, nil
}

// recoverFromWAL rebuilds s from w's latest checkpoint plus every
// operation committed since (§4.7/§4.8 Replay), applying each one
// directly against the store instead of through a lossy flat key→text
// map so multi-element lists/hashes/sets survive the round trip intact.
// Reports whether it found any WAL-derived state at all, so New can fall
// back to the snapshot file on a fresh WAL with no checkpoints yet.
func recoverFromWAL(s *store.Store, w *wal.WAL) (bool, error) {
	cp, err := w.GetLatestCheckpoint()
	if err != nil {
		return false, fmt.Errorf("get latest checkpoint: %w", err)
	}

	var sinceID uint64
	if cp != nil {
		s.Reset()
		for k, j := range cp.Data {
			var v types.Value
			if err := json.Unmarshal([]byte(j), &v); err != nil {
				log.WithComponent("manager").Warn().Err(err).Str("key", k).
					Msg("skipping unparseable checkpoint entry")
				continue
			}
			s.PutRaw(k, &v)
		}
		sinceID = cp.ID
	}

	replayed := 0
	err = w.ReplayCommittedOps(sinceID, func(e wal.Entry) {
		s.ApplyWALEntry(string(e.Command), e.Key, e.Value, e.Metadata)
		replayed++
	})
	if err != nil {
		return false, fmt.Errorf("replay committed ops: %w", err)
	}

	return cp != nil || replayed > 0, nil
}

// Close stops the sweeper, flushes a final snapshot, and closes the
// WAL, fsyncing it on close (§5's graceful-shutdown contract).
func (m *Manager) Close() error {
	atomic.StoreInt32(&m.running, 0)
	close(m.stopSweep)
	<-m.sweepDone

	m.broker.Stop()

	if err := m.Save(); err != nil {
		log.WithComponent("manager").Warn().Err(err).Msg("snapshot save on shutdown failed")
	}
	return m.wal.Close()
}

// IsRunning reports whether the manager has not yet been asked to shut
// down.
func (m *Manager) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

// StartSweeper launches the background goroutine that periodically
// sweeps expired keys and offloads cold ones (§5's "background sweeper
// goroutine").
func (m *Manager) StartSweeper() {
	m.sweepDone = make(chan struct{})
	go m.sweepLoop()
}

func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)

	interval := time.Duration(m.cfg.Memory.LowFrequencyCheckInterval) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.RunMaintenance()
		}
	}
}

// RunMaintenance sweeps expired keys, rolls back any explicit
// transaction that has sat open past its timeout, and, if memory
// pressure warrants it, offloads cold keys to disk. Exported so callers
// can trigger a pass synchronously; the sweeper calls it on every tick.
func (m *Manager) RunMaintenance() {
	m.mu.Lock()
	n := m.store.SweepExpired()
	m.mu.Unlock()
	if n > 0 {
		metrics.ExpiredKeysTotal.Add(float64(n))
		m.broker.Publish(&events.Event{Type: events.TypeExpirySwept, Count: n})
		log.WithComponent("manager").Info().Int("count", n).Msg("expiry sweep removed keys")
	}

	if timeout := m.cfg.Transactions.TimeoutSeconds; timeout > 0 {
		if rolled := m.CheckTxnTimeouts(timeout); len(rolled) > 0 {
			log.WithComponent("manager").Warn().Int("count", len(rolled)).
				Msg("rolled back transactions open past their timeout")
		}
	}

	if !m.cfg.Memory.EnableMemoryOptimization {
		return
	}
	offloaded, err := m.offloadColdKeys()
	if err != nil {
		log.WithComponent("manager").Warn().Err(err).Msg("cold-key offload pass failed")
		return
	}
	if offloaded > 0 {
		log.WithComponent("manager").Info().Int("count", offloaded).Msg("offloaded cold keys to disk")
	}
}

func (m *Manager) offloadColdKeys() (int, error) {
	m.mu.Lock()
	current := m.store.KeyCount()
	level := m.pressure.Level(current, m.cfg.Memory.MaxMemoryKeys)
	if !memory.ShouldOptimize(current, m.cfg.Memory.MaxMemoryKeys, level) {
		m.mu.Unlock()
		metrics.MemoryPressureLevel.Set(float64(level))
		return 0, nil
	}

	strategy := memory.SelectStrategy(level, m.pressure.HitRatio())
	target := memory.KeysToRemove(strategy, current, m.cfg.Memory.MaxMemoryKeys)

	stats := make([]memory.KeyStat, 0, current)
	for _, k := range m.store.MemoryResidentKeys() {
		accessCount, lastAccess, ok := m.store.Stat(k)
		if !ok {
			continue
		}
		stats = append(stats, memory.KeyStat{Key: k, AccessCount: accessCount, LastAccessTime: lastAccess})
	}
	candidates := memory.SelectCandidates(stats, m.cfg.Memory.AccessThreshold, m.cfg.Memory.IdleTimeThreshold, target)
	m.mu.Unlock()

	metrics.MemoryPressureLevel.Set(float64(level))

	offloaded := 0
	for _, key := range candidates {
		ok, err := m.offloadKey(key)
		if err != nil {
			log.WithComponent("manager").Warn().Err(err).Str("key", key).Msg("offload failed")
			continue
		}
		if ok {
			offloaded++
		}
	}
	return offloaded, nil
}

// Stats is a point-in-time snapshot of the figures the metrics
// collector polls periodically.
type Stats struct {
	MemoryKeys  int
	DiskKeys    int
	KeysByType  map[string]int
	HitRatio    float64
	PendingTxns int
}

// CollectStats takes the lock just long enough to copy out the
// counters the metrics collector needs.
func (m *Manager) CollectStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		MemoryKeys:  m.store.KeyCount(),
		DiskKeys:    m.store.DiskKeyCount(),
		KeysByType:  m.store.KeyCountsByType(),
		HitRatio:    m.pressure.HitRatio(),
		PendingTxns: len(m.txn.ListPending()),
	}
}

// Subscribe returns a channel of internal lifecycle events (offload,
// load, expiry sweep, checkpoint, compaction, snapshot) for the
// metrics collector to drain into counters. Not exposed over the wire
// protocol — callers are in-process only.
func (m *Manager) Subscribe() events.Subscriber {
	return m.broker.Subscribe()
}

// Unsubscribe releases a subscription returned by Subscribe.
func (m *Manager) Unsubscribe(sub events.Subscriber) {
	m.broker.Unsubscribe(sub)
}

func (m *Manager) keyFilePath(key string) string {
	name := base64.StdEncoding.EncodeToString([]byte(key)) + ".json"
	return filepath.Join(m.cfg.Memory.DiskBasePath, name)
}

// offloadKey serialises key's value to its per-key JSON file and
// removes it from memory (§4.9's Offload).
func (m *Manager) offloadKey(key string) (bool, error) {
	m.mu.Lock()
	v, ok := m.store.RawValue(key)
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("manager: marshal value for offload: %w", err)
	}
	m.mu.Unlock()

	if err := os.WriteFile(m.keyFilePath(key), data, 0o644); err != nil {
		return false, fmt.Errorf("manager: write cold-key file: %w", err)
	}

	m.mu.Lock()
	m.store.MarkDiskResident(key)
	m.mu.Unlock()

	m.pressure.RecordOffload()
	metrics.OffloadsTotal.Inc()
	m.broker.Publish(&events.Event{Type: events.TypeKeyOffloaded, Key: key})
	return true, nil
}

// ensureLoaded reads key's cold file back into memory if it is
// currently disk-resident (§4.9's Load). Must be called with m.mu held.
func (m *Manager) ensureLoaded(key string) error {
	if !m.store.IsDiskResident(key) {
		if m.store.Exists(key) {
			m.pressure.RecordHit()
		}
		return nil
	}
	m.pressure.RecordMiss()

	path := m.keyFilePath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("manager: read cold-key file: %w", err)
	}

	var v types.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("manager: unmarshal cold-key file: %w", err)
	}

	m.store.ClearDiskResident(key, &v)
	m.pressure.RecordLoad()
	metrics.LoadsTotal.Inc()
	m.broker.Publish(&events.Event{Type: events.TypeKeyLoaded, Key: key})
	return nil
}

// deleteColdFile removes key's on-disk file, if any (§5's resource
// policy: "deleted only when the key is deleted outright").
func (m *Manager) deleteColdFile(key string) {
	path := m.keyFilePath(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithComponent("manager").Warn().Err(err).Str("key", key).Msg("failed removing cold-key file")
	}
}

// Save writes a full snapshot to the configured data file, after taking
// a WAL checkpoint so replay and the snapshot agree on a recovery point.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := m.checkpointLocked(); err != nil {
		log.WithComponent("manager").Warn().Err(err).Msg("checkpoint before save failed")
	}
	if err := m.store.SaveToFile(m.cfg.Persistence.DataFile); err != nil {
		return fmt.Errorf("manager: save snapshot: %w", err)
	}
	m.broker.Publish(&events.Event{Type: events.TypeSnapshotSaved})
	return nil
}

// checkpointLocked takes a WAL checkpoint of the currently
// memory-resident string-serialisable keys. It must not take m.mu
// itself — callers already hold it (directly, or via txn's
// auto-checkpoint callback which fires mid-append).
func (m *Manager) checkpointLocked() error {
	data := make(map[string]string, len(m.store.MemoryResidentKeys()))
	for _, k := range m.store.MemoryResidentKeys() {
		v, ok := m.store.RawValue(k)
		if !ok {
			continue
		}
		data[k] = valueJSON(v)
	}
	if _, err := m.wal.CreateCheckpoint(data); err != nil {
		return fmt.Errorf("manager: create checkpoint: %w", err)
	}
	metrics.WALCheckpointsTotal.Inc()
	m.broker.Publish(&events.Event{Type: events.TypeCheckpoint, Count: len(data)})
	return nil
}

// FlushDB clears every key, memory- and disk-resident, and writes a
// fresh empty snapshot.
func (m *Manager) FlushDB() error {
	m.mu.Lock()
	for _, k := range m.store.MemoryResidentKeys() {
		m.deleteColdFile(k)
	}
	*m.store = *store.New()
	m.mu.Unlock()
	return m.Save()
}

// Checkpoint takes an explicit WAL checkpoint on demand (the `checkpoint`
// command), independent of the periodic auto-checkpoint the WAL triggers
// internally on its append-count interval.
func (m *Manager) Checkpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpointLocked()
}

// Compact runs WAL log compaction.
func (m *Manager) Compact() error {
	if err := m.wal.Compact(); err != nil {
		return fmt.Errorf("manager: compact wal: %w", err)
	}
	metrics.WALCompactionsTotal.Inc()
	m.broker.Publish(&events.Event{Type: events.TypeCompaction})
	return nil
}

// BeginTxn starts a new explicit transaction. Every mutating command a
// session issues while it holds this id open is logged against this
// same transaction (see withTxn) instead of auto-committing on its
// own, so a later RollbackTxn undoes exactly and only those commands.
func (m *Manager) BeginTxn() (uint64, error) {
	id, err := m.txn.Begin()
	if err != nil {
		return 0, err
	}
	metrics.TransactionsActive.Inc()
	return id, nil
}

// CommitTxn commits an explicit transaction: every operation logged
// against id since BeginTxn is already applied and already durable
// (ExecuteOpWithOldValue WAL-appends as each command runs), so commit
// only has to mark the transaction closed.
func (m *Manager) CommitTxn(id uint64) error {
	if err := m.txn.Commit(id); err != nil {
		return err
	}
	metrics.TransactionsActive.Dec()
	metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	return nil
}

// RollbackTxn rolls back an explicit transaction by undoing, in reverse
// order, exactly the operations logged against id since BeginTxn — the
// same computeUndo/applyUndoLocked mechanism withTxn's auto-commit
// rollback path uses, just fed id's own buffered operation list instead
// of a single auto-txn's. Concurrent writes other connections made
// under their own transactions are untouched.
func (m *Manager) RollbackTxn(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.txn.Rollback(id, m.applyUndoLocked); err != nil {
		return err
	}
	metrics.TransactionsActive.Dec()
	metrics.TransactionsTotal.WithLabelValues("rolled_back").Inc()
	return nil
}

// IsTxnActive reports whether id names a currently active explicit
// transaction.
func (m *Manager) IsTxnActive(id uint64) bool {
	return m.txn.IsActive(id)
}

// ListPendingTxns returns currently active explicit transaction ids.
func (m *Manager) ListPendingTxns() []uint64 {
	return m.txn.ListPending()
}

// CheckTxnTimeouts rolls back every transaction that has sat Active
// longer than timeoutSeconds, undoing each one's own buffered
// operations the same way RollbackTxn does.
func (m *Manager) CheckTxnTimeouts(timeoutSeconds int64) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	rolled := m.txn.CheckTimeouts(timeoutSeconds, m.applyUndoLocked)
	for range rolled {
		metrics.TransactionsActive.Dec()
		metrics.TransactionsTotal.WithLabelValues("timed_out").Inc()
	}
	return rolled
}

// applyUndoLocked applies one rollback undo step directly against the
// store, bypassing the WAL (the Rollback entry already recorded the
// abort; these restore in-memory state to match it). Must be called
// with m.mu held.
func (m *Manager) applyUndoLocked(step txn.UndoStep) error {
	switch step.Action {
	case txn.UndoDeleteKey:
		m.store.Delete(step.Key)
	case txn.UndoSetString:
		m.store.PutRaw(step.Key, types.NewString(step.OldValue))
	case txn.UndoPopFront:
		_, _, _ = m.store.LPop(step.Key)
	case txn.UndoPopBack:
		_, _, _ = m.store.RPop(step.Key)
	case txn.UndoPushFront:
		_, _ = m.store.LPush(step.Key, step.OldValue)
	case txn.UndoPushBack:
		_, _ = m.store.RPush(step.Key, step.OldValue)
	case txn.UndoHDel:
		_, _ = m.store.HDel(step.Key, step.Field)
	case txn.UndoHSetRestore:
		_, _ = m.store.HSet(step.Key, step.Field, step.OldValue)
	case txn.UndoSRem:
		_, _ = m.store.SRem(step.Key, step.Member)
	case txn.UndoRestoreValue:
		return m.restoreValueLocked(step.Key, step.OldValue)
	case txn.UndoNone:
	}
	return nil
}

func (m *Manager) restoreValueLocked(key, oldValueJSON string) error {
	if oldValueJSON == "" {
		m.store.Delete(key)
		return nil
	}
	var v types.Value
	if err := json.Unmarshal([]byte(oldValueJSON), &v); err != nil {
		return fmt.Errorf("manager: unmarshal undo pre-image: %w", err)
	}
	m.store.PutRaw(key, &v)
	return nil
}

// valueJSON serialises v for use as a WAL old_value/checkpoint
// pre-image, returning "" for an absent value.
func valueJSON(v *types.Value) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// withTxn wraps a single store mutation in a transaction (§9's
// "WAL-for-every-mutation" resolution): the mutate callback performs
// the in-memory change and returns the Operation describing it for
// WAL/undo purposes. fn may return a nil Operation (Type "") to mean
// "no mutation occurred, skip WAL entirely" — e.g. Set on an unchanged
// value still always mutates, but a miss like deleting an absent key
// does not.
//
// If txnID is 0 (no explicit transaction open on the calling session),
// the mutation gets its own disposable auto-commit transaction, exactly
// as the teacher's single-operation commands always did. If txnID is
// nonzero, the op is logged against that caller-supplied, already-open
// explicit transaction instead — begin/commit/rollback of it is the
// session's to call via BeginTxn/CommitTxn/RollbackTxn, not this
// command's.
func (m *Manager) withTxn(txnID uint64, fn func() (txn.Operation, error)) error {
	if txnID != 0 {
		op, err := fn()
		if err != nil {
			return err
		}
		if op.Type == "" {
			return nil
		}
		if err := m.txn.ExecuteOpWithOldValue(txnID, op); err != nil {
			return fmt.Errorf("manager: log txn op: %w", err)
		}
		return nil
	}

	id, err := m.txn.Begin()
	if err != nil {
		return fmt.Errorf("manager: begin auto-txn: %w", err)
	}

	op, err := fn()
	if err != nil {
		_ = m.txn.Rollback(id, m.applyUndoLocked)
		return err
	}
	if op.Type == "" {
		return m.txn.Rollback(id, m.applyUndoLocked)
	}

	if err := m.txn.ExecuteOpWithOldValue(id, op); err != nil {
		return fmt.Errorf("manager: log auto-txn op: %w", err)
	}
	return m.txn.Commit(id)
}

// useTxn resolves the transaction id a multi-step mutation (SAdd, SPop)
// should log against: txnID itself if the caller already has one open,
// or a freshly begun one it now owns and must commit/roll back itself.
func (m *Manager) useTxn(txnID uint64) (id uint64, owns bool, err error) {
	if txnID != 0 {
		return txnID, false, nil
	}
	id, err = m.txn.Begin()
	return id, true, err
}
