// Package memory implements the memory manager (C5): pressure
// computation, eviction strategy selection, and cold-key candidate
// selection, per §4.9.
package memory

import (
	"math"
	"sort"
	"time"
)

// Config holds the memory-manager's tunables (§6 `memory.*`).
type Config struct {
	Enable              bool
	AccessThreshold      int64
	IdleTimeThreshold    int64 // seconds
	MaxMemoryKeys        int
	LowFreqCheckInterval int64 // seconds, how often the sweeper checks
}

// Strategy names an eviction aggressiveness tier.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyLight     Strategy = "light"
	StrategyModerate  Strategy = "moderate"
	StrategyAggressive Strategy = "aggressive"
)

// fraction returns the share of the excess that a strategy targets for
// removal.
func (s Strategy) fraction() float64 {
	switch s {
	case StrategyLight:
		return 0.1
	case StrategyModerate:
		return 0.25
	case StrategyAggressive:
		return 0.5
	default:
		return 0
	}
}

// Pressure tracks cache hit/miss/offload/load counters and derives the
// 0-10 pressure level from them combined with key-count occupancy.
type Pressure struct {
	Hits     int64
	Misses   int64
	Offloads int64
	Loads    int64
}

// RecordHit records a memory-resident lookup success.
func (p *Pressure) RecordHit() { p.Hits++ }

// RecordMiss records a lookup of a disk-resident key that had to be
// loaded back into memory.
func (p *Pressure) RecordMiss() { p.Misses++ }

// RecordOffload records a key moved to disk.
func (p *Pressure) RecordOffload() { p.Offloads++ }

// RecordLoad records a key loaded back from disk.
func (p *Pressure) RecordLoad() { p.Loads++ }

// HitRatio returns Hits/(Hits+Misses), or 1.0 with no samples yet so a
// cold-started server isn't immediately judged to be under pressure.
func (p *Pressure) HitRatio() float64 {
	total := p.Hits + p.Misses
	if total == 0 {
		return 1.0
	}
	return float64(p.Hits) / float64(total)
}

// Level computes the 0-10 pressure level (§4.9): occupancy ratio scaled
// to 0-8, plus up to +2 when the hit ratio drops below 0.8 and below
// 0.5 respectively, clamped to [0,10].
func (p *Pressure) Level(currentKeys, maxKeys int) int {
	if maxKeys <= 0 {
		maxKeys = 1
	}
	occupancy := float64(currentKeys) / float64(maxKeys)
	level := occupancy * 8.0

	ratio := p.HitRatio()
	if ratio < 0.8 {
		level++
	}
	if ratio < 0.5 {
		level++
	}

	rounded := int(math.Round(level))
	if rounded < 0 {
		rounded = 0
	}
	if rounded > 10 {
		rounded = 10
	}
	return rounded
}

// SelectStrategy maps a pressure level to an eviction strategy (§4.9).
func SelectStrategy(level int, hitRatio float64) Strategy {
	switch {
	case level <= 3:
		return StrategyNone
	case level <= 6:
		if hitRatio >= 0.7 {
			return StrategyLight
		}
		return StrategyModerate
	case level <= 8:
		return StrategyModerate
	default:
		return StrategyAggressive
	}
}

// KeysToRemove returns ceil(fraction * excess) for the given strategy,
// where excess = currentKeys - maxKeys (never negative).
func KeysToRemove(strategy Strategy, currentKeys, maxKeys int) int {
	excess := currentKeys - maxKeys
	if excess <= 0 {
		return 0
	}
	return int(math.Ceil(strategy.fraction() * float64(excess)))
}

// ShouldOptimize reports whether the manager should run an offload pass:
// either over the configured key budget, or pressure has reached 8+.
func ShouldOptimize(currentKeys, maxKeys int, level int) bool {
	return currentKeys > maxKeys || level >= 8
}

// KeyStat is the access-metadata slice memory.SelectCandidates needs
// from the store, decoupled from the store's own metadata type so this
// package has no import-cycle dependency on pkg/types.
type KeyStat struct {
	Key            string
	AccessCount    int64
	LastAccessTime int64
}

// SelectCandidates returns up to maxCandidates keys eligible for
// offload: those with AccessCount below accessThreshold OR idle beyond
// idleThreshold, sorted ascending by (AccessCount, LastAccessTime) so
// the coldest keys sort first (§4.9).
func SelectCandidates(stats []KeyStat, accessThreshold, idleThreshold int64, maxCandidates int) []string {
	now := time.Now().Unix()

	var eligible []KeyStat
	for _, s := range stats {
		idle := now - s.LastAccessTime
		if s.AccessCount < accessThreshold || idle > idleThreshold {
			eligible = append(eligible, s)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].AccessCount != eligible[j].AccessCount {
			return eligible[i].AccessCount < eligible[j].AccessCount
		}
		return eligible[i].LastAccessTime < eligible[j].LastAccessTime
	})

	if maxCandidates >= 0 && maxCandidates < len(eligible) {
		eligible = eligible[:maxCandidates]
	}

	out := make([]string, len(eligible))
	for i, s := range eligible {
		out[i] = s.Key
	}
	return out
}
