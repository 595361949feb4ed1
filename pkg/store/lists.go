package store

import (
	"github.com/cuemby/kvstore/pkg/kverrors"
	"github.com/cuemby/kvstore/pkg/types"
)

// listFor returns key's deque, type-coercing (replacing with a fresh
// empty list) a mismatched or absent key, per §4.3.
func (s *Store) listFor(key string) (*types.Value, bool) {
	fresh := !s.exists(key)
	if fresh {
		v := types.NewList(types.NewDeque())
		s.data[key] = v
		return v, true
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		v = types.NewList(types.NewDeque())
		s.data[key] = v
		return v, true
	}
	return v, false
}

// LPush inserts value at the head, returning the new length.
func (s *Store) LPush(key, value string) (int, error) {
	v, fresh := s.listFor(key)
	v.List.PushFront(value)
	s.touchWrite(key, v.EstimatedSize(), fresh)
	return v.List.Len(), nil
}

// RPush inserts value at the tail, returning the new length.
func (s *Store) RPush(key, value string) (int, error) {
	v, fresh := s.listFor(key)
	v.List.PushBack(value)
	s.touchWrite(key, v.EstimatedSize(), fresh)
	return v.List.Len(), nil
}

// LPop removes and returns the head, or ok=false if absent/empty.
func (s *Store) LPop(key string) (string, bool, error) {
	if !s.exists(key) {
		return "", false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		return "", false, kverrors.NewTypeMismatch(key, "list", v.TypeName())
	}
	val, ok := v.List.PopFront()
	if !ok {
		return "", false, nil
	}
	s.touchWrite(key, v.EstimatedSize(), false)
	return val, true, nil
}

// RPop removes and returns the tail, or ok=false if absent/empty.
func (s *Store) RPop(key string) (string, bool, error) {
	if !s.exists(key) {
		return "", false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		return "", false, kverrors.NewTypeMismatch(key, "list", v.TypeName())
	}
	val, ok := v.List.PopBack()
	if !ok {
		return "", false, nil
	}
	s.touchWrite(key, v.EstimatedSize(), false)
	return val, true, nil
}

// LLen returns the list length, or 0 if absent.
func (s *Store) LLen(key string) int {
	if !s.exists(key) {
		return 0
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		return 0
	}
	s.touchRead(key)
	return v.List.Len()
}

// LRange returns the slice [s,e) using the exclusive-end, negative-
// index convention of §4.3: s = start<0 ? max(0,L+start) : min(start,L);
// e = end<0 ? max(0,L+end+1) : min(end+1,L).
func (s *Store) LRange(key string, start, end int) ([]string, error) {
	if !s.exists(key) {
		return nil, nil
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		return nil, kverrors.NewTypeMismatch(key, "list", v.TypeName())
	}
	s.touchRead(key)

	l := v.List.Len()
	if l == 0 {
		return nil, nil
	}

	startIdx := normalizeStart(start, l)
	endIdx := normalizeEnd(end, l)
	if startIdx >= endIdx {
		return nil, nil
	}

	full := v.List.Slice()
	return full[startIdx:endIdx], nil
}

func normalizeStart(start, l int) int {
	if start < 0 {
		s := l + start
		if s < 0 {
			s = 0
		}
		return s
	}
	if start > l {
		return l
	}
	return start
}

func normalizeEnd(end, l int) int {
	if end < 0 {
		e := l + end + 1
		if e < 0 {
			e = 0
		}
		return e
	}
	if end+1 > l {
		return l
	}
	return end + 1
}

// LIndex returns the element at a negative/positive index, or ok=false
// if out of range or the key is absent.
func (s *Store) LIndex(key string, idx int) (string, bool, error) {
	if !s.exists(key) {
		return "", false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		return "", false, kverrors.NewTypeMismatch(key, "list", v.TypeName())
	}
	s.touchRead(key)

	l := v.List.Len()
	pos := idx
	if pos < 0 {
		pos = l + pos
	}
	return v.List.At(pos)
}

// LSet assigns to an existing index, returning whether it succeeded.
func (s *Store) LSet(key string, idx int, value string) (bool, error) {
	if !s.exists(key) {
		return false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		return false, kverrors.NewTypeMismatch(key, "list", v.TypeName())
	}

	l := v.List.Len()
	pos := idx
	if pos < 0 {
		pos = l + pos
	}
	if !v.List.SetAt(pos, value) {
		return false, nil
	}
	s.touchWrite(key, v.EstimatedSize(), false)
	return true, nil
}

// LDel removes the whole list, returning whether it existed.
func (s *Store) LDel(key string) (bool, error) {
	if !s.exists(key) {
		return false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindList {
		return false, kverrors.NewTypeMismatch(key, "list", v.TypeName())
	}
	s.deleteAll(key)
	return true, nil
}
