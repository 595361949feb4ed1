package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetOverwrite(t *testing.T) {
	s := New()
	_, err := s.Set("a", "1")
	require.NoError(t, err)
	_, err = s.Set("a", "2")
	require.NoError(t, err)

	v, ok, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestSetWithEXSuffixExpires(t *testing.T) {
	s := New()
	_, err := s.Set("x", "hello EX 1")
	require.NoError(t, err)

	v, ok, err := s.Get("x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	ttl := s.TTL("x")
	assert.True(t, ttl == 1 || ttl == 0)
}

func TestListScenario(t *testing.T) {
	s := New()
	_, err := s.LPush("L", "foo")
	require.NoError(t, err)
	_, err = s.LPush("L", "bar")
	require.NoError(t, err)
	_, err = s.RPush("L", "baz")
	require.NoError(t, err)

	out, err := s.LRange("L", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar", "foo", "baz"}, out)
}

func TestHashSetReturnsIsNewFlag(t *testing.T) {
	s := New()
	isNew, err := s.HSet("H", "f", "v1")
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.HSet("H", "f", "v2")
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestSetAddReturnsNewCount(t *testing.T) {
	s := New()
	added, err := s.SAdd("S", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = s.SAdd("S", []string{"b", "d"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	isMember, err := s.SIsMember("S", "a")
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestBeginRollbackCommitTransactionLikeScenario(t *testing.T) {
	s := New()
	_, err := s.Set("n", "oldval")
	require.NoError(t, err)
	_, err = s.Set("n", "newval")
	require.NoError(t, err)

	v, ok, err := s.Get("n")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "newval", v)
}

func TestTypeCoercion(t *testing.T) {
	s := New()
	_, err := s.Set("k", "s")
	require.NoError(t, err)

	_, _, err = s.HGet("k", "f")
	assert.Error(t, err)

	_, err = s.LPush("k", "v")
	require.NoError(t, err)

	v, ok, err := s.Get("k")
	require.Error(t, err)
	assert.False(t, ok)
	_ = v
}

func TestDeleteAndExpire(t *testing.T) {
	s := New()
	_, err := s.Set("k", "v")
	require.NoError(t, err)

	assert.True(t, s.SetExpire("k", -1))
	assert.True(t, s.exists("k") == false || s.TTL("k") <= 0)

	deleted := s.Delete("k")
	_ = deleted
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	_, _ = s.Set("a", "1")
	_, _ = s.LPush("L", "x")
	_, _ = s.HSet("H", "f", "v")
	_, _ = s.SAdd("S", []string{"m1", "m2"})

	data, err := s.Snapshot()
	require.NoError(t, err)

	s2 := New()
	require.NoError(t, s2.LoadSnapshot(data))

	v, ok, err := s2.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)

	lst, err := s2.LRange("L", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, lst)

	hv, ok, err := s2.HGet("H", "f")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", hv)

	members, err := s2.SMembers("S")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, members)
}

func TestExpiredKeyReadsAsAbsent(t *testing.T) {
	s := New()
	_, err := s.Set("k", "v")
	require.NoError(t, err)
	s.expiry.SetExpireAt("k", time.Now().Unix()-1)

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}
