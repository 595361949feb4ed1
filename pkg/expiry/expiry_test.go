package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLStates(t *testing.T) {
	idx := New()

	assert.Equal(t, int64(-2), idx.TTL("missing", false))
	assert.Equal(t, int64(-1), idx.TTL("present-no-ttl", true))

	idx.SetExpire("k", 10)
	assert.InDelta(t, 10, idx.TTL("k", true), 1)
}

func TestIsExpiredAndSweep(t *testing.T) {
	idx := New()
	idx.SetExpireAt("past", time.Now().Unix()-1)
	idx.SetExpire("future", 60)

	assert.True(t, idx.IsExpired("past"))
	assert.False(t, idx.IsExpired("future"))

	expired := idx.FindExpired()
	assert.ElementsMatch(t, []string{"past"}, expired)

	idx.RemoveExpired(expired)
	assert.False(t, idx.Has("past"))
	assert.True(t, idx.Has("future"))
}

func TestSnapshotRestore(t *testing.T) {
	idx := New()
	idx.SetExpire("a", 100)

	snap := idx.Snapshot()

	other := New()
	other.Restore(snap)
	assert.True(t, other.Has("a"))
}
