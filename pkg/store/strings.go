package store

import (
	"strconv"
	"strings"

	"github.com/cuemby/kvstore/pkg/kverrors"
	"github.com/cuemby/kvstore/pkg/types"
)

// Set replaces any existing value at key (§4.2). If value carries the
// trailing suffix " EX <n>" with n a nonnegative integer, an expiry of
// n seconds from now is set and only the prefix is stored.
func (s *Store) Set(key, value string) (string, error) {
	stored, ttl, hasTTL := parseSetEX(value)
	fresh := !s.exists(key)

	v := types.NewString(stored)
	s.data[key] = v
	s.touchWrite(key, v.EstimatedSize(), fresh)

	if hasTTL {
		s.expiry.SetExpire(key, ttl)
	}
	return "OK", nil
}

// parseSetEX detects a trailing " EX <n>" suffix and splits it off.
func parseSetEX(value string) (stored string, seconds int64, ok bool) {
	const marker = " EX "
	idx := strings.LastIndex(value, marker)
	if idx < 0 {
		return value, 0, false
	}
	tail := value[idx+len(marker):]
	n, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || n < 0 {
		return value, 0, false
	}
	return value[:idx], n, true
}

// Get returns the stored text, or ok=false if absent/expired.
// TypeMismatch if key holds a non-string.
func (s *Store) Get(key string) (string, bool, error) {
	if !s.exists(key) {
		return "", false, nil
	}
	v := s.data[key]
	if v.Kind != types.KindString {
		return "", false, kverrors.NewTypeMismatch(key, "string", v.TypeName())
	}
	s.touchRead(key)
	return v.Str, true, nil
}

// Append appends to an existing string, creating one if absent; returns
// the resulting length.
func (s *Store) Append(key, value string) (int, error) {
	fresh := !s.exists(key)
	if fresh {
		v := types.NewString(value)
		s.data[key] = v
		s.touchWrite(key, v.EstimatedSize(), true)
		return len(value), nil
	}

	v := s.data[key]
	if v.Kind != types.KindString {
		return 0, kverrors.NewTypeMismatch(key, "string", v.TypeName())
	}
	v.Str += value
	s.touchWrite(key, v.EstimatedSize(), false)
	return len(v.Str), nil
}

// Strlen returns the string's length, or 0 if absent or if the key holds
// a non-string value.
func (s *Store) Strlen(key string) int {
	if !s.exists(key) {
		return 0
	}
	v := s.data[key]
	if v.Kind != types.KindString {
		return 0
	}
	s.touchRead(key)
	return len(v.Str)
}
