package manager

import (
	"os"

	"github.com/cuemby/kvstore/pkg/txn"
	"github.com/cuemby/kvstore/pkg/types"
)

// Command methods are the store manager's public surface (§4.2-§4.5):
// each takes the exclusive lock, loads the key back from disk if it is
// currently cold, and — for mutations — wraps the store change in a
// transaction via withTxn so exactly one code path writes to the WAL.
// txnID is 0 for an implicit, auto-committed command, or a session's
// own BeginTxn id when the command runs inside an explicit transaction.

// Set stores value at key, replacing any existing value (§4.2).
func (m *Manager) Set(txnID uint64, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return "", err
	}

	var result string
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		old := stringPreImage(m.store.RawValue(key))
		r, err := m.store.Set(key, value)
		if err != nil {
			return txn.Operation{}, err
		}
		result = r
		return txn.Operation{Type: txn.OpSet, Key: key, Value: value, OldValue: old}, nil
	})
	return result, err
}

// Get returns the string stored at key.
func (m *Manager) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return "", false, err
	}
	return m.store.Get(key)
}

// Append appends value to the string at key, creating it if absent. The
// WAL entry carries the resulting full string (a "string"-tagged Set),
// not just the appended fragment, so replay reconstructs the same state
// without needing append semantics of its own.
func (m *Manager) Append(txnID uint64, key, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}

	var length int
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		old := stringPreImage(m.store.RawValue(key))
		n, err := m.store.Append(key, value)
		if err != nil {
			return txn.Operation{}, err
		}
		length = n
		full, _, _ := m.store.Get(key)
		return txn.Operation{Type: txn.OpSet, Key: key, Value: full, OldValue: old}, nil
	})
	return length, err
}

// Strlen returns the length of the string at key, 0 if absent.
func (m *Manager) Strlen(key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}
	return m.store.Strlen(key), nil
}

// Delete removes key outright, whether memory- or disk-resident.
func (m *Manager) Delete(txnID uint64, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasDiskResident := m.store.IsDiskResident(key)
	var pre string
	if v, ok := m.store.RawValue(key); ok {
		pre = valueJSON(v)
	} else if wasDiskResident {
		if data, err := os.ReadFile(m.keyFilePath(key)); err == nil {
			pre = string(data)
		}
	}

	var existed bool
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		deleted := m.store.Delete(key)
		existed = deleted
		if !deleted {
			return txn.Operation{}, nil
		}
		return txn.Operation{Type: txn.OpDelete, Key: key, OldValue: pre, Metadata: "delete"}, nil
	})
	if err == nil && existed && wasDiskResident {
		m.deleteColdFile(key)
	}
	return existed, err
}

// SetExpire applies a TTL of seconds from now to key. Expiry is
// best-effort bookkeeping, not part of the undo/WAL model (§4.6).
func (m *Manager) SetExpire(key string, seconds int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}
	return m.store.SetExpire(key, seconds), nil
}

// TTL returns seconds remaining, -1 (no TTL), or -2 (absent).
func (m *Manager) TTL(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}
	return m.store.TTL(key), nil
}

// LPush prepends value to the list at key.
func (m *Manager) LPush(txnID uint64, key, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}

	var n int
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		result, err := m.store.LPush(key, value)
		if err != nil {
			return txn.Operation{}, err
		}
		n = result
		return txn.Operation{Type: txn.OpLPush, Key: key, Value: value}, nil
	})
	return n, err
}

// RPush appends value to the list at key.
func (m *Manager) RPush(txnID uint64, key, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}

	var n int
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		result, err := m.store.RPush(key, value)
		if err != nil {
			return txn.Operation{}, err
		}
		n = result
		return txn.Operation{Type: txn.OpRPush, Key: key, Value: value}, nil
	})
	return n, err
}

// LPop removes and returns the list's front element.
func (m *Manager) LPop(txnID uint64, key string) (string, bool, error) {
	return m.listPop(txnID, key, txn.OpLPop, m.store.LPop)
}

// RPop removes and returns the list's back element.
func (m *Manager) RPop(txnID uint64, key string) (string, bool, error) {
	return m.listPop(txnID, key, txn.OpRPop, m.store.RPop)
}

func (m *Manager) listPop(txnID uint64, key string, opType txn.OpType, do func(string) (string, bool, error)) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return "", false, err
	}

	var value string
	var ok bool
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		v, popped, err := do(key)
		if err != nil {
			return txn.Operation{}, err
		}
		if !popped {
			return txn.Operation{}, nil
		}
		value, ok = v, true
		return txn.Operation{Type: opType, Key: key, OldValue: v}, nil
	})
	return value, ok, err
}

// LLen returns the length of the list at key.
func (m *Manager) LLen(key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}
	return m.store.LLen(key), nil
}

// LRange returns the inclusive-range slice of the list at key.
func (m *Manager) LRange(key string, start, end int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return nil, err
	}
	return m.store.LRange(key, start, end)
}

// LIndex returns the element at idx in the list at key.
func (m *Manager) LIndex(key string, idx int) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return "", false, err
	}
	return m.store.LIndex(key, idx)
}

// LSet replaces the element at idx in the list at key. Unlike the other
// list mutations, a single-index in-place replace has no WAL-replayable
// shape in the per-element operation set (§4.7's OpType list covers
// push/pop/whole-list-delete, not splice-by-index), so LSet is applied
// directly against the store and picked up by the next checkpoint rather
// than individually WAL-logged; a crash between checkpoints can lose it.
func (m *Manager) LSet(key string, idx int, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}
	return m.store.LSet(key, idx, value)
}

// LDel removes the list at key outright.
func (m *Manager) LDel(txnID uint64, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}

	var ok bool
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		v, hasValue := m.store.RawValue(key)
		var pre string
		if hasValue {
			pre = valueJSON(v)
		}
		deleted, err := m.store.LDel(key)
		if err != nil {
			return txn.Operation{}, err
		}
		if !deleted {
			return txn.Operation{}, nil
		}
		ok = true
		return txn.Operation{Type: txn.OpLDel, Key: key, OldValue: pre, Metadata: "list"}, nil
	})
	return ok, err
}

// HSet sets field to value in the hash at key.
func (m *Manager) HSet(txnID uint64, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}

	var isNew bool
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		old, existed, _ := m.store.HGet(key, field)
		fresh, err := m.store.HSet(key, field, value)
		if err != nil {
			return txn.Operation{}, err
		}
		isNew = fresh
		op := txn.Operation{Type: txn.OpHSet, Key: key, Field: field, Value: value}
		if existed {
			op.OldValue = old
		}
		return op, nil
	})
	return isNew, err
}

// HGet returns field's value in the hash at key.
func (m *Manager) HGet(key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return "", false, err
	}
	return m.store.HGet(key, field)
}

// HDel removes field from the hash at key.
func (m *Manager) HDel(txnID uint64, key, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}

	var ok bool
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		old, existed, _ := m.store.HGet(key, field)
		deleted, err := m.store.HDel(key, field)
		if err != nil {
			return txn.Operation{}, err
		}
		if !deleted || !existed {
			return txn.Operation{}, nil
		}
		ok = true
		return txn.Operation{Type: txn.OpHDel, Key: key, Field: field, OldValue: old}, nil
	})
	return ok, err
}

// HDelKey removes the whole hash at key outright.
func (m *Manager) HDelKey(txnID uint64, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}

	var ok bool
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		v, hasValue := m.store.RawValue(key)
		var pre string
		if hasValue {
			pre = valueJSON(v)
		}
		deleted, err := m.store.HDelKey(key)
		if err != nil {
			return txn.Operation{}, err
		}
		if !deleted {
			return txn.Operation{}, nil
		}
		ok = true
		return txn.Operation{Type: txn.OpHDelKey, Key: key, OldValue: pre, Metadata: "hash"}, nil
	})
	return ok, err
}

// HKeys returns every field name in the hash at key.
func (m *Manager) HKeys(key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return nil, err
	}
	return m.store.HKeys(key)
}

// HVals returns every field value in the hash at key.
func (m *Manager) HVals(key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return nil, err
	}
	return m.store.HVals(key)
}

// HGetAll returns the full field→value map for the hash at key.
func (m *Manager) HGetAll(key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return nil, err
	}
	return m.store.HGetAll(key)
}

// HExists reports whether field exists in the hash at key.
func (m *Manager) HExists(key, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}
	return m.store.HExists(key, field)
}

// HLen returns the number of fields in the hash at key.
func (m *Manager) HLen(key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}
	return m.store.HLen(key), nil
}

// SAdd adds members to the set at key, returning the count newly
// inserted. Each newly-added member is logged as its own operation so
// Rollback's complementary SRem undoes exactly what was added. When
// txnID is nonzero, every member's op logs against the caller's own
// open transaction instead of a disposable one SAdd owns.
func (m *Manager) SAdd(txnID uint64, key string, members []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}

	id, owns, err := m.useTxn(txnID)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, member := range members {
		already, _ := m.store.SIsMember(key, member)
		if already {
			continue
		}
		if _, err := m.store.SAdd(key, []string{member}); err != nil {
			if owns {
				_ = m.txn.Rollback(id, m.applyUndoLocked)
			}
			return added, err
		}
		added++
		op := txn.Operation{Type: txn.OpSAdd, Key: key, Member: member}
		if err := m.txn.ExecuteOpWithOldValue(id, op); err != nil {
			if owns {
				_ = m.txn.Rollback(id, m.applyUndoLocked)
			}
			return added, err
		}
	}

	if !owns {
		return added, nil
	}
	if added == 0 {
		return 0, m.txn.Rollback(id, m.applyUndoLocked)
	}
	return added, m.txn.Commit(id)
}

// SRem removes member from the set at key.
func (m *Manager) SRem(txnID uint64, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}

	var ok bool
	err := m.withTxn(txnID, func() (txn.Operation, error) {
		v, hasValue := m.store.RawValue(key)
		removed, err := m.store.SRem(key, member)
		if err != nil {
			return txn.Operation{}, err
		}
		if !removed {
			return txn.Operation{}, nil
		}
		ok = true
		var pre string
		if hasValue {
			pre = valueJSON(v)
		}
		return txn.Operation{Type: txn.OpSRem, Key: key, Member: member, OldValue: pre, Metadata: "set"}, nil
	})
	return ok, err
}

// SIsMember reports whether member is in the set at key.
func (m *Manager) SIsMember(key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return false, err
	}
	return m.store.SIsMember(key, member)
}

// SMembers returns every member of the set at key.
func (m *Manager) SMembers(key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return nil, err
	}
	return m.store.SMembers(key)
}

// SCard returns the number of members in the set at key.
func (m *Manager) SCard(key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return 0, err
	}
	return m.store.SCard(key), nil
}

// SRandMember returns a random sample of members without removing them.
func (m *Manager) SRandMember(key string, count *int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return nil, err
	}
	return m.store.SRandMember(key, count)
}

// SPop removes and returns up to count random members from the set at
// key, logging one SRem-shaped op per popped member, each carrying the
// whole set's pre-image (mirroring SRem's own "restore the full set"
// rollback, since a pop has no single-member complementary undo). When
// txnID is nonzero, the ops log against the caller's own open
// transaction instead of a disposable one SPop owns.
func (m *Manager) SPop(txnID uint64, key string, count int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(key); err != nil {
		return nil, err
	}

	v, hasValue := m.store.RawValue(key)
	var pre string
	if hasValue {
		pre = valueJSON(v)
	}

	popped, err := m.store.SPop(key, count)
	if err != nil {
		return nil, err
	}
	if len(popped) == 0 {
		return popped, nil
	}

	id, owns, err := m.useTxn(txnID)
	if err != nil {
		return nil, err
	}
	// Every popped member's op carries the same pre-pop full-set
	// pre-image: applying any one of them on rollback already restores
	// the original set, and reverse-order replay of the rest is then a
	// harmless no-op restore of the same state.
	for _, member := range popped {
		op := txn.Operation{Type: txn.OpSRem, Key: key, Member: member, OldValue: pre, Metadata: "set"}
		if err := m.txn.ExecuteOpWithOldValue(id, op); err != nil {
			if owns {
				_ = m.txn.Rollback(id, m.applyUndoLocked)
			}
			return nil, err
		}
	}
	if !owns {
		return popped, nil
	}
	return popped, m.txn.Commit(id)
}

// stringPreImage returns v's text if it holds a string, "" otherwise
// (absent key or a different kind) — the scope of Set/Append's undo
// pre-image, matching the existing "rollback restores a string, not a
// reconstructed prior type" model for Set.
func stringPreImage(v *types.Value, ok bool) string {
	if !ok || v.Kind != types.KindString {
		return ""
	}
	return v.Str
}
