package store

import (
	"github.com/cuemby/kvstore/pkg/kverrors"
	"github.com/cuemby/kvstore/pkg/types"
)

// hashFor returns key's field map, type-coercing a mismatched or absent
// key to a fresh empty hash, per §4.4.
func (s *Store) hashFor(key string) (*types.Value, bool) {
	fresh := !s.exists(key)
	if fresh {
		v := types.NewHash(nil)
		s.data[key] = v
		return v, true
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		v = types.NewHash(nil)
		s.data[key] = v
		return v, true
	}
	return v, false
}

// HSet inserts/overwrites field, returning true iff it was newly
// created. Type-coerces as in lists.
func (s *Store) HSet(key, field, value string) (bool, error) {
	v, fresh := s.hashFor(key)
	_, existed := v.Hash[field]
	v.Hash[field] = value
	s.touchWrite(key, v.EstimatedSize(), fresh)
	return !existed, nil
}

// HGet returns field's value, or ok=false if absent.
func (s *Store) HGet(key, field string) (string, bool, error) {
	if !s.exists(key) {
		return "", false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return "", false, kverrors.NewTypeMismatch(key, "hash", v.TypeName())
	}
	s.touchRead(key)
	val, ok := v.Hash[field]
	return val, ok, nil
}

// HDel removes field, returning whether it existed.
func (s *Store) HDel(key, field string) (bool, error) {
	if !s.exists(key) {
		return false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return false, kverrors.NewTypeMismatch(key, "hash", v.TypeName())
	}
	if _, ok := v.Hash[field]; !ok {
		return false, nil
	}
	delete(v.Hash, field)
	s.touchWrite(key, v.EstimatedSize(), false)
	return true, nil
}

// HDelKey removes the whole hash, returning whether it existed.
func (s *Store) HDelKey(key string) (bool, error) {
	if !s.exists(key) {
		return false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return false, kverrors.NewTypeMismatch(key, "hash", v.TypeName())
	}
	s.deleteAll(key)
	return true, nil
}

// HKeys returns every field name.
func (s *Store) HKeys(key string) ([]string, error) {
	if !s.exists(key) {
		return nil, nil
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return nil, kverrors.NewTypeMismatch(key, "hash", v.TypeName())
	}
	s.touchRead(key)
	out := make([]string, 0, len(v.Hash))
	for f := range v.Hash {
		out = append(out, f)
	}
	return out, nil
}

// HVals returns every field value.
func (s *Store) HVals(key string) ([]string, error) {
	if !s.exists(key) {
		return nil, nil
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return nil, kverrors.NewTypeMismatch(key, "hash", v.TypeName())
	}
	s.touchRead(key)
	out := make([]string, 0, len(v.Hash))
	for _, val := range v.Hash {
		out = append(out, val)
	}
	return out, nil
}

// HGetAll returns a copy of the whole field→value map.
func (s *Store) HGetAll(key string) (map[string]string, error) {
	if !s.exists(key) {
		return nil, nil
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return nil, kverrors.NewTypeMismatch(key, "hash", v.TypeName())
	}
	s.touchRead(key)
	out := make(map[string]string, len(v.Hash))
	for f, val := range v.Hash {
		out[f] = val
	}
	return out, nil
}

// HExists reports whether field is present.
func (s *Store) HExists(key, field string) (bool, error) {
	if !s.exists(key) {
		return false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return false, kverrors.NewTypeMismatch(key, "hash", v.TypeName())
	}
	s.touchRead(key)
	_, ok := v.Hash[field]
	return ok, nil
}

// HLen returns the number of fields, or 0 if absent.
func (s *Store) HLen(key string) int {
	if !s.exists(key) {
		return 0
	}
	v := s.data[key]
	if v.Kind != types.KindHash {
		return 0
	}
	s.touchRead(key)
	return len(v.Hash)
}
