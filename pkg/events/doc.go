// Package events records internal lifecycle occurrences — offloads,
// loads, expiry sweeps, checkpoints — for consumption by the metrics
// collector and structured logs. It is not a client-visible pub/sub
// feature: no wire command subscribes to it.
package events
