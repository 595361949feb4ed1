package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPressureLevelClampedAndRatioAdjusted(t *testing.T) {
	p := &Pressure{}
	// No samples: hit ratio defaults to 1.0, so only occupancy matters.
	assert.Equal(t, 0, p.Level(0, 100))
	assert.Equal(t, 8, p.Level(100, 100))

	for i := 0; i < 10; i++ {
		p.RecordMiss()
	}
	// All misses: ratio 0, both +1 bonuses apply.
	assert.Equal(t, 10, p.Level(100, 100))
}

func TestSelectStrategyBands(t *testing.T) {
	assert.Equal(t, StrategyNone, SelectStrategy(0, 1.0))
	assert.Equal(t, StrategyNone, SelectStrategy(3, 1.0))
	assert.Equal(t, StrategyLight, SelectStrategy(5, 0.9))
	assert.Equal(t, StrategyModerate, SelectStrategy(5, 0.5))
	assert.Equal(t, StrategyModerate, SelectStrategy(7, 1.0))
	assert.Equal(t, StrategyAggressive, SelectStrategy(9, 1.0))
	assert.Equal(t, StrategyAggressive, SelectStrategy(10, 1.0))
}

func TestKeysToRemove(t *testing.T) {
	assert.Equal(t, 0, KeysToRemove(StrategyLight, 100, 200))
	assert.Equal(t, 10, KeysToRemove(StrategyLight, 200, 100))
	assert.Equal(t, 25, KeysToRemove(StrategyModerate, 200, 100))
	assert.Equal(t, 50, KeysToRemove(StrategyAggressive, 200, 100))
}

func TestSelectCandidatesOrderingAndCap(t *testing.T) {
	stats := []KeyStat{
		{Key: "hot", AccessCount: 100, LastAccessTime: time.Now().Unix()},
		{Key: "cold1", AccessCount: 1, LastAccessTime: 0},
		{Key: "cold2", AccessCount: 2, LastAccessTime: 0},
	}

	got := SelectCandidates(stats, 5, 1_000_000, 1)
	assert.Equal(t, []string{"cold1"}, got)

	got = SelectCandidates(stats, 5, 1_000_000, 10)
	assert.Equal(t, []string{"cold1", "cold2"}, got)
}

func TestShouldOptimize(t *testing.T) {
	assert.True(t, ShouldOptimize(150, 100, 0))
	assert.True(t, ShouldOptimize(50, 100, 9))
	assert.False(t, ShouldOptimize(50, 100, 3))
}
