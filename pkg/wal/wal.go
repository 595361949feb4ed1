// Package wal implements the write-ahead log (C6): append-only,
// fsync-durable, checkpointed, and compactable, per §4.8.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/kvstore/pkg/log"
)

// DefaultCheckpointInterval is the number of appended entries after
// which an automatic checkpoint is taken.
const DefaultCheckpointInterval = 1000

// WAL is the append-only log plus its checkpoint directory. All methods
// are safe for concurrent use; a single mutex serialises access to the
// file handle, matching the "WAL file handle behind its own exclusive
// lock" resource model (§5).
type WAL struct {
	mu sync.Mutex

	logPath       string
	checkpointDir string

	file   *os.File
	writer *bufio.Writer

	lastSequence           uint64
	activeTransactions     map[uint64]bool
	checkpointInterval     uint64
	entriesSinceCheckpoint uint64
}

// Open creates or reopens the WAL at logPath, scanning existing entries
// to recover lastSequence and the set of still-open transactions.
func Open(logPath string) (*WAL, error) {
	if dir := filepath.Dir(logPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("wal: create log dir: %w", err)
		}
	}

	checkpointDir := filepath.Join(filepath.Dir(logPath), "checkpoints")
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create checkpoint dir: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open log file: %w", err)
	}

	w := &WAL{
		logPath:            logPath,
		checkpointDir:      checkpointDir,
		file:               f,
		writer:             bufio.NewWriter(f),
		activeTransactions: make(map[uint64]bool),
		checkpointInterval: DefaultCheckpointInterval,
	}

	entries, err := w.loadEntries()
	if err != nil {
		f.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.ID > w.lastSequence {
			w.lastSequence = e.ID
		}
		switch e.Command {
		case CmdBegin:
			w.activeTransactions[e.ID] = true
		case CmdCommit, CmdRollback:
			delete(w.activeTransactions, e.ID)
		}
	}

	return w, nil
}

// WithCheckpointInterval overrides the default auto-checkpoint interval.
func (w *WAL) WithCheckpointInterval(n uint64) *WAL {
	w.checkpointInterval = n
	return w
}

// Close flushes and closes the underlying file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append writes entry to the log: write, flush, then fsync data and
// metadata before returning, so callers may treat a nil return as the
// durability commitment point (I4).
func (w *WAL) Append(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(entry)
}

func (w *WAL) appendLocked(entry Entry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	line := entry.Serialize()
	if _, err := w.writer.WriteString(line); err != nil {
		return fmt.Errorf("wal: write entry: %w", err)
	}
	if _, err := w.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("wal: write entry newline: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush entry: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync entry: %w", err)
	}

	if entry.ID > w.lastSequence {
		w.lastSequence = entry.ID
	}

	switch entry.Command {
	case CmdBegin:
		w.activeTransactions[entry.ID] = true
	case CmdCommit, CmdRollback:
		delete(w.activeTransactions, entry.ID)
	}

	w.entriesSinceCheckpoint++
	if w.checkpointInterval > 0 && w.entriesSinceCheckpoint >= w.checkpointInterval {
		if _, err := w.createCheckpointLocked(nil); err != nil {
			log.WithComponent("wal").Warn().Err(err).Msg("auto-checkpoint failed")
		}
	}
	return nil
}

// Begin appends a Begin entry for txnID.
func (w *WAL) Begin(txnID uint64) error {
	return w.Append(Entry{Command: CmdBegin, ID: txnID})
}

// Commit appends a Commit entry for txnID.
func (w *WAL) Commit(txnID uint64) error {
	return w.Append(Entry{Command: CmdCommit, ID: txnID})
}

// Rollback appends a Rollback entry for txnID.
func (w *WAL) Rollback(txnID uint64) error {
	return w.Append(Entry{Command: CmdRollback, ID: txnID})
}

// CreateCheckpoint snapshots data into a checkpoint file and appends a
// Checkpoint entry referencing it. The checkpoint id is lastSequence+1.
func (w *WAL) CreateCheckpoint(data map[string]string) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.createCheckpointLocked(data)
}

func (w *WAL) createCheckpointLocked(data map[string]string) (uint64, error) {
	id := w.lastSequence + 1
	if data == nil {
		data = map[string]string{}
	}
	cp := Checkpoint{ID: id, Timestamp: time.Now().Unix(), Data: data}

	path, err := WriteCheckpointFile(w.checkpointDir, cp)
	if err != nil {
		return 0, err
	}

	entry := Entry{Command: CmdCheckpoint, Key: path, ID: id, Timestamp: cp.Timestamp}
	if err := w.appendEntryRaw(entry); err != nil {
		return 0, err
	}
	w.entriesSinceCheckpoint = 0
	return id, nil
}

// appendEntryRaw writes an entry without re-entering the checkpoint
// threshold check, used internally by createCheckpointLocked (which
// already holds w.mu and must not recurse into appendLocked's own
// checkpoint trigger).
func (w *WAL) appendEntryRaw(entry Entry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	if _, err := w.writer.WriteString(entry.Serialize() + "\n"); err != nil {
		return fmt.Errorf("wal: write checkpoint entry: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush checkpoint entry: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync checkpoint entry: %w", err)
	}
	if entry.ID > w.lastSequence {
		w.lastSequence = entry.ID
	}
	return nil
}

// GetLatestCheckpoint scans the log backward for the most recent
// Checkpoint entry and loads the file it references.
func (w *WAL) GetLatestCheckpoint() (*Checkpoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := w.loadEntries()
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Command != CmdCheckpoint {
			continue
		}
		if _, err := os.Stat(entries[i].Key); err != nil {
			continue
		}
		cp, err := ReadCheckpointFile(entries[i].Key)
		if err != nil {
			return nil, err
		}
		return &cp, nil
	}
	return nil, nil
}

// Recover rebuilds the key→text map by loading the latest checkpoint
// and replaying every committed transaction's operations after it
// (§4.7 Replay). Uncommitted and rolled-back transactions leave no
// residue.
func (w *WAL) Recover() (map[string]string, error) {
	cp, err := w.GetLatestCheckpoint()
	if err != nil {
		return nil, err
	}

	data := make(map[string]string)
	checkpointID := uint64(0)
	if cp != nil {
		for k, v := range cp.Data {
			data[k] = v
		}
		checkpointID = cp.ID
	}

	w.mu.Lock()
	entries, err := w.loadEntries()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	txnOps := make(map[uint64][]Entry)
	started := make(map[uint64]bool)

	pastCheckpoint := cp == nil
	for _, e := range entries {
		if !pastCheckpoint {
			if e.Command == CmdCheckpoint && e.ID == checkpointID {
				pastCheckpoint = true
			}
			continue
		}
		switch e.Command {
		case CmdBegin:
			started[e.ID] = true
			txnOps[e.ID] = nil
		case CmdPut, CmdDelete:
			if started[e.ID] {
				txnOps[e.ID] = append(txnOps[e.ID], e)
			}
		case CmdCommit:
			for _, op := range txnOps[e.ID] {
				switch op.Command {
				case CmdPut:
					data[op.Key] = op.Value
				case CmdDelete:
					delete(data, op.Key)
				}
			}
			delete(txnOps, e.ID)
			delete(started, e.ID)
		case CmdRollback:
			delete(txnOps, e.ID)
			delete(started, e.ID)
		}
	}
	return data, nil
}

// ReplayCommittedOps invokes apply, in commit order, once for every
// Put/Delete entry belonging to a transaction committed after the
// checkpoint entry whose id is sinceID (or anywhere in the log when
// sinceID is 0). Like Recover, the boundary is the checkpoint entry's
// position in the log, not a comparison of transaction ids. Unlike Recover,
// which collapses entries into a flat last-write-wins key→text map, this
// hands the caller each entry untouched so a richer replay (e.g. against
// typed per-element store mutations) can apply it directly. Uncommitted
// and rolled-back transactions leave no residue.
func (w *WAL) ReplayCommittedOps(sinceID uint64, apply func(Entry)) error {
	w.mu.Lock()
	entries, err := w.loadEntries()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	txnOps := make(map[uint64][]Entry)
	started := make(map[uint64]bool)
	pastCheckpoint := sinceID == 0

	for _, e := range entries {
		if !pastCheckpoint {
			if e.Command == CmdCheckpoint && e.ID == sinceID {
				pastCheckpoint = true
			}
			continue
		}
		switch e.Command {
		case CmdBegin:
			started[e.ID] = true
			txnOps[e.ID] = nil
		case CmdPut, CmdDelete:
			if started[e.ID] {
				txnOps[e.ID] = append(txnOps[e.ID], e)
			}
		case CmdCommit:
			for _, op := range txnOps[e.ID] {
				apply(op)
			}
			delete(txnOps, e.ID)
			delete(started, e.ID)
		case CmdRollback:
			delete(txnOps, e.ID)
			delete(started, e.ID)
		}
	}
	return nil
}

// Compact creates a fresh checkpoint, then rewrites the log keeping only
// entries at or after the checkpoint id plus any entry belonging to a
// still-active transaction.
func (w *WAL) Compact() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	checkpointID, err := w.createCheckpointLocked(nil)
	if err != nil {
		return fmt.Errorf("wal: checkpoint before compaction: %w", err)
	}

	entries, err := w.loadEntries()
	if err != nil {
		return err
	}

	tempPath := w.logPath + ".temp"
	tf, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("wal: create compaction temp file: %w", err)
	}

	tw := bufio.NewWriter(tf)
	for _, e := range entries {
		if e.ID >= checkpointID || w.activeTransactions[e.ID] {
			if _, err := tw.WriteString(e.Serialize() + "\n"); err != nil {
				tf.Close()
				return fmt.Errorf("wal: write compacted entry: %w", err)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		tf.Close()
		return fmt.Errorf("wal: flush compaction temp file: %w", err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return fmt.Errorf("wal: sync compaction temp file: %w", err)
	}
	if err := tf.Close(); err != nil {
		return fmt.Errorf("wal: close compaction temp file: %w", err)
	}

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush live wal before rename: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close live wal before rename: %w", err)
	}

	if err := os.Rename(tempPath, w.logPath); err != nil {
		return fmt.Errorf("wal: rename compacted file into place: %w", err)
	}

	f, err := os.OpenFile(w.logPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("wal: reopen wal after compaction: %w", err)
	}
	w.file = f
	w.writer = bufio.NewWriter(f)
	return nil
}

// CompactIfNeeded compacts when the log file exceeds thresholdBytes,
// returning whether compaction ran.
func (w *WAL) CompactIfNeeded(thresholdBytes int64) (bool, error) {
	size, err := w.FileSize()
	if err != nil {
		return false, err
	}
	if size <= thresholdBytes {
		return false, nil
	}
	return true, w.Compact()
}

// FileSize returns the current size of the on-disk log file.
func (w *WAL) FileSize() (int64, error) {
	fi, err := os.Stat(w.logPath)
	if err != nil {
		return 0, fmt.Errorf("wal: stat log file: %w", err)
	}
	return fi.Size(), nil
}

// ListPendingTransactions returns the ids of transactions with a Begin
// entry but no matching Commit/Rollback, ascending.
func (w *WAL) ListPendingTransactions() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint64, 0, len(w.activeTransactions))
	for id := range w.activeTransactions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTransactionActive reports whether txnID has a Begin entry with no
// terminal entry yet.
func (w *WAL) IsTransactionActive(txnID uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeTransactions[txnID]
}

// LastSequence returns the highest entry id observed so far, the basis
// for both checkpoint ids and the transaction id boot seed (§4's
// resolved "transaction id seed" open question).
func (w *WAL) LastSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSequence
}

// loadEntries reads every parseable line in the log file, in order.
// Entries that fail to parse are skipped (logged, not fatal) per the
// Serialization error-handling policy (§7): "WAL entry is logged as
// invalid and skipped during replay".
func (w *WAL) loadEntries() ([]Entry, error) {
	if err := w.writer.Flush(); err != nil {
		return nil, fmt.Errorf("wal: flush before read: %w", err)
	}

	f, err := os.Open(w.logPath)
	if err != nil {
		return nil, fmt.Errorf("wal: open log for read: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		e, err := ParseEntry(line)
		if err != nil {
			log.WithComponent("wal").Warn().Err(err).Msg("skipping malformed wal entry during replay")
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("wal: scan log: %w", err)
	}
	return entries, nil
}
