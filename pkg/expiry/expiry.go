// Package expiry implements the key→absolute-expiration index (C2): a
// plain map guarded by the caller's lock (the store's), since every
// access to it already happens under the Store's single exclusive lock.
package expiry

import "time"

// Index maps a key to the absolute epoch second it expires at. A key
// with no entry has no TTL.
type Index struct {
	at map[string]int64
}

// New returns an empty expiry index.
func New() *Index {
	return &Index{at: make(map[string]int64)}
}

// SetExpire records that key expires `seconds` from now.
func (idx *Index) SetExpire(key string, seconds int64) {
	idx.at[key] = time.Now().Unix() + seconds
}

// SetExpireAt records an absolute expiry timestamp directly, used by
// snapshot/WAL recovery to restore a previously-computed deadline.
func (idx *Index) SetExpireAt(key string, at int64) {
	idx.at[key] = at
}

// Clear removes any TTL for key.
func (idx *Index) Clear(key string) {
	delete(idx.at, key)
}

// TTL returns seconds remaining: -1 if the key has no TTL set, -2 if the
// key has no entry at all versus an existing TTL — callers distinguish
// "no TTL" (key exists, -1) from "absent" (-2) using hasKey.
func (idx *Index) TTL(key string, hasKey bool) int64 {
	at, ok := idx.at[key]
	if !ok {
		if hasKey {
			return -1
		}
		return -2
	}
	remaining := at - time.Now().Unix()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired reports whether key's recorded expiry has passed.
func (idx *Index) IsExpired(key string) bool {
	at, ok := idx.at[key]
	if !ok {
		return false
	}
	return time.Now().Unix() >= at
}

// FindExpired returns every key whose expiry is now or in the past.
func (idx *Index) FindExpired() []string {
	now := time.Now().Unix()
	var out []string
	for k, at := range idx.at {
		if now >= at {
			out = append(out, k)
		}
	}
	return out
}

// RemoveExpired clears the expiry entries for the given keys.
func (idx *Index) RemoveExpired(keys []string) {
	for _, k := range keys {
		delete(idx.at, k)
	}
}

// Has reports whether key carries a TTL.
func (idx *Index) Has(key string) bool {
	_, ok := idx.at[key]
	return ok
}

// Snapshot returns a copy of the whole key→expiry map, used when
// persisting and restoring state across restarts.
func (idx *Index) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(idx.at))
	for k, v := range idx.at {
		out[k] = v
	}
	return out
}

// Restore replaces the index contents from a previously captured map.
func (idx *Index) Restore(m map[string]int64) {
	idx.at = make(map[string]int64, len(m))
	for k, v := range m {
		idx.at[k] = v
	}
}
