// Package store implements the typed value engine (C1, C3, C4): the
// key→value table, its per-key metadata, and the per-type operation
// handlers of §4.2-§4.5. Store itself holds no lock — concurrency is
// the store manager's job (C8, §5) — so every exported method here
// assumes the caller already holds whatever lock protects the table.
package store

import (
	"github.com/cuemby/kvstore/pkg/expiry"
	"github.com/cuemby/kvstore/pkg/kverrors"
	"github.com/cuemby/kvstore/pkg/types"
)

// Store owns the key→value table, its per-key metadata, the expiry
// index, and the disk-residency marker set (§3's three-state key model).
type Store struct {
	data     map[string]*types.Value
	meta     map[string]*types.Metadata
	expiry   *expiry.Index
	diskKeys map[string]bool

	// DefaultTTLSeconds, when non-zero, is applied to every fresh write
	// (§4.6 Default TTL) unless the operation already specified one.
	DefaultTTLEnabled bool
	DefaultTTLSeconds int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		data:     make(map[string]*types.Value),
		meta:     make(map[string]*types.Metadata),
		expiry:   expiry.New(),
		diskKeys: make(map[string]bool),
	}
}

// StringOps, ListOps, HashOps, SetOps are presentational capability
// groups (§9 "Polymorphism over variants") — *Store satisfies all four;
// splitting them out only helps tests substitute a narrower fake.
type StringOps interface {
	Set(key, value string) (string, error)
	Get(key string) (string, bool, error)
	Append(key, value string) (int, error)
	Strlen(key string) int
}

type ListOps interface {
	LPush(key, value string) (int, error)
	RPush(key, value string) (int, error)
	LPop(key string) (string, bool, error)
	RPop(key string) (string, bool, error)
	LLen(key string) int
	LRange(key string, start, end int) ([]string, error)
	LIndex(key string, idx int) (string, bool, error)
	LSet(key string, idx int, value string) (bool, error)
	LDel(key string) (bool, error)
}

type HashOps interface {
	HSet(key, field, value string) (bool, error)
	HGet(key, field string) (string, bool, error)
	HDel(key, field string) (bool, error)
	HDelKey(key string) (bool, error)
	HKeys(key string) ([]string, error)
	HVals(key string) ([]string, error)
	HGetAll(key string) (map[string]string, error)
	HExists(key, field string) (bool, error)
	HLen(key string) int
}

type SetOps interface {
	SAdd(key string, members []string) (int, error)
	SRem(key, member string) (bool, error)
	SIsMember(key, member string) (bool, error)
	SMembers(key string) ([]string, error)
	SCard(key string) int
	SRandMember(key string, count *int) ([]string, error)
	SPop(key string, count int) ([]string, error)
}

// Exists reports whether key is currently memory-resident, first
// deleting it if its TTL has passed. Exported for the store manager's
// cache-hit-ratio bookkeeping.
func (s *Store) Exists(key string) bool {
	return s.exists(key)
}

// exists reports whether key is currently memory-resident, first
// deleting it if its TTL has passed (§4.6: "Every read/write through C4
// first tests is_expired... if expired, the key is deleted").
func (s *Store) exists(key string) bool {
	if s.expiry.IsExpired(key) {
		s.deleteAll(key)
		return false
	}
	_, ok := s.data[key]
	return ok
}

// deleteAll removes every trace of key: value, metadata, expiry entry,
// and disk marker (I3).
func (s *Store) deleteAll(key string) {
	delete(s.data, key)
	delete(s.meta, key)
	delete(s.diskKeys, key)
	s.expiry.Clear(key)
}

// touchRead records a read access on an existing key.
func (s *Store) touchRead(key string) {
	if m, ok := s.meta[key]; ok {
		m.Access()
	}
}

// touchWrite records a mutation on key, creating metadata if absent and
// applying the default TTL on a fresh write (§4.6).
func (s *Store) touchWrite(key string, size int, freshWrite bool) {
	if m, ok := s.meta[key]; ok {
		m.Modify(size)
		return
	}
	s.meta[key] = types.NewMetadata(size)
	if freshWrite && s.DefaultTTLEnabled && s.DefaultTTLSeconds > 0 {
		s.expiry.SetExpire(key, s.DefaultTTLSeconds)
	}
}

// getTyped returns the value at key if present and of the expected
// kind, applying type coercion when coerce is true (LPush/RPush/HSet/
// SAdd replace a mismatched key instead of failing, §4.3/§4.4/§4.5).
func (s *Store) getTyped(key string, kind types.Kind, coerce bool) (v *types.Value, fresh bool, err error) {
	if !s.exists(key) {
		return nil, true, nil
	}
	v = s.data[key]
	if v.Kind != kind {
		if coerce {
			return nil, true, nil
		}
		return nil, false, kverrors.NewTypeMismatch(key, string(kind), v.TypeName())
	}
	return v, false, nil
}

// Delete removes key outright, whether it is currently memory- or
// disk-resident, returning whether it existed (I3).
func (s *Store) Delete(key string) bool {
	if s.exists(key) {
		s.deleteAll(key)
		return true
	}
	if s.diskKeys[key] {
		s.deleteAll(key)
		return true
	}
	return false
}

// SetExpire applies a TTL of seconds from now to key (spec: `expire`
// command), returning whether the key exists to carry one.
func (s *Store) SetExpire(key string, seconds int64) bool {
	if !s.exists(key) {
		return false
	}
	s.expiry.SetExpire(key, seconds)
	return true
}

// TTL returns seconds remaining, -1 (no TTL), or -2 (absent), per §4.6.
func (s *Store) TTL(key string) int64 {
	has := s.exists(key)
	return s.expiry.TTL(key, has)
}

// SweepExpired removes every currently-expired key and returns how many
// were cleared; invoked by C8's background sweeper (§4.6).
func (s *Store) SweepExpired() int {
	expired := s.expiry.FindExpired()
	for _, k := range expired {
		s.deleteAll(k)
	}
	return len(expired)
}

// KeyCount returns the number of memory-resident keys.
func (s *Store) KeyCount() int {
	return len(s.data)
}

// DiskKeyCount returns the number of currently disk-resident keys.
func (s *Store) DiskKeyCount() int {
	return len(s.diskKeys)
}

// KeyCountsByType returns the number of memory-resident keys for each
// value kind, keyed by TypeName() ("string", "list", "hash", "set").
func (s *Store) KeyCountsByType() map[string]int {
	out := make(map[string]int, 4)
	for _, v := range s.data {
		out[v.TypeName()]++
	}
	return out
}

// IsDiskResident reports whether key is currently marked disk-resident.
func (s *Store) IsDiskResident(key string) bool {
	return s.diskKeys[key]
}

// MarkDiskResident removes key's in-memory value (keeping metadata so
// access stats survive the round trip) and sets the disk marker,
// completing half of C8's offload (§4.9).
func (s *Store) MarkDiskResident(key string) {
	delete(s.data, key)
	s.diskKeys[key] = true
}

// ClearDiskResident removes the disk marker and reinserts value into
// memory, completing a C8 load (§4.9).
func (s *Store) ClearDiskResident(key string, value *types.Value) {
	delete(s.diskKeys, key)
	s.data[key] = value
	if _, ok := s.meta[key]; !ok {
		s.meta[key] = types.NewMetadata(value.EstimatedSize())
	}
}

// Stat returns a memory.KeyStat-shaped view of key's access metadata,
// ok is false if key has no metadata (never written, or disk-resident
// without ever being memory-resident in this process).
func (s *Store) Stat(key string) (accessCount, lastAccess int64, ok bool) {
	m, exists := s.meta[key]
	if !exists {
		return 0, 0, false
	}
	return m.AccessCount, m.LastAccessTime, true
}

// MemoryResidentKeys returns every key currently holding an in-memory
// value (used both for snapshotting and for candidate scanning).
func (s *Store) MemoryResidentKeys() []string {
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

// ValueKind returns the kind of the value at key, or "" if absent.
func (s *Store) ValueKind(key string) string {
	if v, ok := s.data[key]; ok {
		return v.TypeName()
	}
	return ""
}

// RawValue returns the live *types.Value at key without any expiry or
// existence bookkeeping — used by the store manager for offload
// serialisation and by the transaction manager for pre-image capture.
// Callers must not mutate the returned value in place.
func (s *Store) RawValue(key string) (*types.Value, bool) {
	v, ok := s.data[key]
	return v, ok
}

// PutRaw installs value at key directly, bypassing type coercion rules
// — used by WAL/snapshot/offload recovery paths and by transaction
// rollback, which restore an already-validated pre-image.
func (s *Store) PutRaw(key string, value *types.Value) {
	s.data[key] = value
	s.touchWrite(key, value.EstimatedSize(), false)
}
