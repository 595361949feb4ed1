package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/kvstore/pkg/types"
)

// snapshotFile is the on-disk shape of a full-store snapshot (§6): the
// typed-value table plus the expiry index, so a reload reproduces
// identical read behaviour (P2), not just identical values.
type snapshotFile struct {
	Data   map[string]*types.Value `json:"data"`
	Expiry map[string]int64        `json:"expiry,omitempty"`
}

// Snapshot renders the entire memory-resident table as the on-disk
// snapshot format. Disk-resident keys are left on disk and are not
// included; the store manager's Save does not load them first.
func (s *Store) Snapshot() ([]byte, error) {
	snap := snapshotFile{
		Data:   make(map[string]*types.Value, len(s.data)),
		Expiry: s.expiry.Snapshot(),
	}
	for k, v := range s.data {
		snap.Data[k] = v
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("store: marshal snapshot: %w", err)
	}
	return data, nil
}

// SaveToFile writes the snapshot to path.
func (s *Store) SaveToFile(path string) error {
	data, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("store: write snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the store's contents from previously-saved JSON.
// Fresh types.NewMetadata is created for every restored key, matching
// §3's "metadata... rebuilt on load".
func (s *Store) LoadSnapshot(data []byte) error {
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("store: unmarshal snapshot: %w", err)
	}

	s.data = make(map[string]*types.Value, len(snap.Data))
	s.meta = make(map[string]*types.Metadata, len(snap.Data))
	s.diskKeys = make(map[string]bool)

	for k, v := range snap.Data {
		s.data[k] = v
		s.meta[k] = types.NewMetadata(v.EstimatedSize())
	}

	s.expiry.Restore(snap.Expiry)
	return nil
}

// LoadFromFile replaces the store's contents from path. A missing file
// is not an error — it means a fresh, empty store (first boot).
func (s *Store) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read snapshot file: %w", err)
	}
	return s.LoadSnapshot(data)
}

// Reset clears the store to empty, used before replaying a checkpoint
// baseline plus post-checkpoint WAL entries on boot.
func (s *Store) Reset() {
	s.data = make(map[string]*types.Value)
	s.meta = make(map[string]*types.Metadata)
	s.diskKeys = make(map[string]bool)
}

// ApplyWALEntry applies one committed WAL operation directly against the
// live store (§4.8 Replay), rather than flattening it into an
// intermediate key→text map first — the only way a list/hash/set with
// more than one element survives a checkpoint-then-replay round trip
// intact, since a flat map can hold just one value per key.
//
// command and key's type prefix disambiguate almost everything on their
// own: a Delete against "list:<k>" can only be an LDel (LPush/RPush/
// LPop/RPop are logged as Put), a Delete against "hash:<k>:<f>" can only
// be an HDel, and so on. The one case that stays ambiguous is a Put
// against "list:<k>", which LPush, RPush, LPop, and RPop all produce —
// there metadata (the entry's semantic tag, e.g. "list:lpush") is the
// only signal available and is consulted.
func (s *Store) ApplyWALEntry(command, key, value, metadata string) {
	switch {
	case strings.HasPrefix(key, "list:"):
		k := strings.TrimPrefix(key, "list:")
		if command == "Delete" {
			_, _ = s.LDel(k)
			return
		}
		switch metadata {
		case "list:lpop":
			_, _, _ = s.LPop(k)
		case "list:rpop":
			_, _, _ = s.RPop(k)
		case "list:lpush":
			_, _ = s.LPush(k, value)
		default:
			_, _ = s.RPush(k, value)
		}
	case strings.HasPrefix(key, "hash:"):
		rest := strings.TrimPrefix(key, "hash:")
		if k, field, ok := splitLast(rest, ':'); ok {
			if command == "Delete" {
				_, _ = s.HDel(k, field)
			} else {
				_, _ = s.HSet(k, field, value)
			}
			return
		}
		// no field segment: the whole-hash-delete form ("hash:<k>").
		_, _ = s.HDelKey(rest)
	case strings.HasPrefix(key, "set:"):
		rest := strings.TrimPrefix(key, "set:")
		k, member, ok := splitLast(rest, ':')
		if !ok {
			return
		}
		if command == "Delete" {
			_, _ = s.SRem(k, member)
		} else {
			_, _ = s.SAdd(k, []string{member})
		}
	default:
		if command == "Delete" {
			s.Delete(key)
		} else {
			_, _ = s.Set(key, value)
		}
	}
}

// splitLast splits s on the last occurrence of sep into (head, tail).
func splitLast(s string, sep byte) (string, string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
