package store

import (
	"math/rand"

	"github.com/cuemby/kvstore/pkg/kverrors"
	"github.com/cuemby/kvstore/pkg/types"
)

// setFor returns key's member set, type-coercing a mismatched or absent
// key to a fresh empty set, per §4.5.
func (s *Store) setFor(key string) (*types.Value, bool) {
	fresh := !s.exists(key)
	if fresh {
		v := types.NewSet(nil)
		s.data[key] = v
		return v, true
	}
	v := s.data[key]
	if v.Kind != types.KindSet {
		v = types.NewSet(nil)
		s.data[key] = v
		return v, true
	}
	return v, false
}

// SAdd adds members, returning the count of newly inserted ones.
func (s *Store) SAdd(key string, members []string) (int, error) {
	v, fresh := s.setFor(key)
	added := 0
	for _, m := range members {
		if _, ok := v.Set[m]; !ok {
			v.Set[m] = struct{}{}
			added++
		}
	}
	s.touchWrite(key, v.EstimatedSize(), fresh)
	return added, nil
}

// SRem removes one member, returning whether it existed.
func (s *Store) SRem(key, member string) (bool, error) {
	if !s.exists(key) {
		return false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindSet {
		return false, kverrors.NewTypeMismatch(key, "set", v.TypeName())
	}
	if _, ok := v.Set[member]; !ok {
		return false, nil
	}
	delete(v.Set, member)
	s.touchWrite(key, v.EstimatedSize(), false)
	return true, nil
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(key, member string) (bool, error) {
	if !s.exists(key) {
		return false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindSet {
		return false, kverrors.NewTypeMismatch(key, "set", v.TypeName())
	}
	s.touchRead(key)
	_, ok := v.Set[member]
	return ok, nil
}

// SMembers returns every member, sorted for deterministic responses.
func (s *Store) SMembers(key string) ([]string, error) {
	if !s.exists(key) {
		return nil, nil
	}
	v := s.data[key]
	if v.Kind != types.KindSet {
		return nil, kverrors.NewTypeMismatch(key, "set", v.TypeName())
	}
	s.touchRead(key)
	return v.SetMembers(), nil
}

// SCard returns the member count, or 0 if absent.
func (s *Store) SCard(key string) int {
	if !s.exists(key) {
		return 0
	}
	v := s.data[key]
	if v.Kind != types.KindSet {
		return 0
	}
	s.touchRead(key)
	return len(v.Set)
}

// SRandMember returns random members without removing them (§4.5):
// count == nil → one member (or empty); count > 0 → up to count
// distinct members; count < 0 → |count| members with replacement.
func (s *Store) SRandMember(key string, count *int) ([]string, error) {
	if !s.exists(key) {
		return nil, nil
	}
	v := s.data[key]
	if v.Kind != types.KindSet {
		return nil, kverrors.NewTypeMismatch(key, "set", v.TypeName())
	}
	s.touchRead(key)

	members := v.SetMembers()
	if len(members) == 0 {
		return nil, nil
	}

	if count == nil {
		return []string{members[rand.Intn(len(members))]}, nil
	}
	n := *count
	if n == 0 {
		return nil, nil
	}
	if n > 0 {
		if n > len(members) {
			n = len(members)
		}
		perm := rand.Perm(len(members))[:n]
		out := make([]string, n)
		for i, p := range perm {
			out[i] = members[p]
		}
		return out, nil
	}
	// n < 0: |n| members with replacement.
	n = -n
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = members[rand.Intn(len(members))]
	}
	return out, nil
}

// SPop removes and returns count (default 1) random members.
func (s *Store) SPop(key string, count int) ([]string, error) {
	if !s.exists(key) {
		return nil, nil
	}
	v := s.data[key]
	if v.Kind != types.KindSet {
		return nil, kverrors.NewTypeMismatch(key, "set", v.TypeName())
	}

	if count <= 0 {
		count = 1
	}
	members := v.SetMembers()
	if len(members) == 0 {
		return nil, nil
	}
	if count > len(members) {
		count = len(members)
	}

	perm := rand.Perm(len(members))[:count]
	out := make([]string, count)
	for i, p := range perm {
		m := members[p]
		out[i] = m
		delete(v.Set, m)
	}
	s.touchWrite(key, v.EstimatedSize(), false)
	return out, nil
}
