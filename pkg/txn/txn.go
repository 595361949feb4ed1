// Package txn implements the transaction manager (C7): transaction
// allocation, operation buffering, WAL-synchronous undo logging, commit/
// rollback, and timeout sweeping, per §4.7.
package txn

import "sync"

// State is one of a transaction's lifecycle states (§3).
type State string

const (
	StateActive     State = "active"
	StatePrepared   State = "prepared"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// OpType is the closed set of mutating operations a transaction can
// record (§4.7).
type OpType string

const (
	OpSet     OpType = "Set"
	OpDelete  OpType = "Delete"
	OpLPush   OpType = "LPush"
	OpRPush   OpType = "RPush"
	OpLPop    OpType = "LPop"
	OpRPop    OpType = "RPop"
	OpLDel    OpType = "LDel"
	OpHSet    OpType = "HSet"
	OpHDel    OpType = "HDel"
	OpHDelKey OpType = "HDelKey"
	OpSAdd    OpType = "SAdd"
	OpSRem    OpType = "SRem"
)

// Operation is one mutation recorded against a transaction. Field/Member
// disambiguate hash/set operations; Value is the new value applied (for
// Set/LPush/RPush/HSet/SAdd); OldValue is the pre-image used for undo;
// Metadata is the semantic tag written to the WAL (e.g. "list:lpush").
type Operation struct {
	Type     OpType
	Key      string
	Field    string
	Member   string
	Value    string
	OldValue string
	Metadata string
}

// Transaction is the in-memory record of one transaction's lifecycle
// (§3). Operations accumulate in commit order (I6).
type Transaction struct {
	mu sync.Mutex

	ID         uint64
	State      State
	Operations []Operation
	StartTime  int64
	EndTime    int64
}

// AddOperation appends op under the transaction's own lock, so lookups
// performed under the manager's reader lock can safely read a snapshot
// of Operations without racing a concurrent append.
func (t *Transaction) AddOperation(op Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Operations = append(t.Operations, op)
}

// Snapshot returns a copy of the transaction's current state.
func (t *Transaction) Snapshot() Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]Operation, len(t.Operations))
	copy(ops, t.Operations)
	return Transaction{
		ID:         t.ID,
		State:      t.State,
		Operations: ops,
		StartTime:  t.StartTime,
		EndTime:    t.EndTime,
	}
}

// typePrefixedKey builds the WAL undo-record key for op, matching the
// original engine's per-variant prefixes: "list:<k>" for list ops,
// "hash:<k>:<f>" for hash-field ops, "set:<k>:<member>" for set ops,
// and the bare key for string/whole-key ops.
func typePrefixedKey(op Operation) string {
	switch op.Type {
	case OpLPush, OpRPush, OpLPop, OpRPop, OpLDel:
		return "list:" + op.Key
	case OpHSet, OpHDel:
		return "hash:" + op.Key + ":" + op.Field
	case OpHDelKey:
		return "hash:" + op.Key
	case OpSAdd, OpSRem:
		return "set:" + op.Key + ":" + op.Member
	default:
		return op.Key
	}
}

// defaultMetadata returns the semantic tag used when the caller doesn't
// supply one explicitly (§4.7's exact tag strings).
func defaultMetadata(op OpType) string {
	switch op {
	case OpSet:
		return "string"
	case OpLPush:
		return "list:lpush"
	case OpRPush:
		return "list:rpush"
	case OpLPop:
		return "list:lpop"
	case OpRPop:
		return "list:rpop"
	case OpLDel:
		return "list:ldel"
	case OpHSet:
		return "hash:hset"
	case OpHDel:
		return "hash:hdel"
	case OpHDelKey:
		return "hash:hdelkey"
	case OpSAdd:
		return "set:sadd"
	case OpSRem:
		return "set:srem"
	case OpDelete:
		return "delete"
	default:
		return ""
	}
}
