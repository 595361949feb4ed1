package types

import "time"

// Metadata is the per-key access bookkeeping kept alongside a Value (§3).
// It is never persisted to the snapshot or WAL — it is rebuilt from
// scratch (with a fresh CreatedTime) whenever a key is loaded or written.
type Metadata struct {
	AccessCount    int64
	LastAccessTime int64 // seconds since epoch
	CreatedTime    int64
	ModifiedTime   int64
	SizeEstimate   int
}

// NewMetadata returns metadata for a freshly created key.
func NewMetadata(size int) *Metadata {
	now := time.Now().Unix()
	return &Metadata{
		AccessCount:    1,
		LastAccessTime: now,
		CreatedTime:    now,
		ModifiedTime:   now,
		SizeEstimate:   size,
	}
}

// Access bumps AccessCount and LastAccessTime; called on every read or
// write that touches the key.
func (m *Metadata) Access() {
	m.AccessCount++
	m.LastAccessTime = time.Now().Unix()
}

// Modify additionally sets ModifiedTime and the new size estimate; called
// on every mutation.
func (m *Metadata) Modify(size int) {
	m.Access()
	m.ModifiedTime = time.Now().Unix()
	m.SizeEstimate = size
}

// IdleSeconds returns how long the key has gone unaccessed.
func (m *Metadata) IdleSeconds() int64 {
	return time.Now().Unix() - m.LastAccessTime
}

// Clone returns a copy of m.
func (m *Metadata) Clone() *Metadata {
	c := *m
	return &c
}
