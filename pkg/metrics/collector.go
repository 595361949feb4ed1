package metrics

import (
	"time"

	"github.com/cuemby/kvstore/pkg/events"
	"github.com/cuemby/kvstore/pkg/log"
	"github.com/cuemby/kvstore/pkg/manager"
)

// statsSource is the slice of *manager.Manager the collector actually
// needs, kept narrow so tests can substitute a fake.
type statsSource interface {
	CollectStats() manager.Stats
	Subscribe() events.Subscriber
	Unsubscribe(events.Subscriber)
}

// Collector polls the store manager on a fixed interval and republishes
// its counters as the package's Prometheus gauges (A5), mirroring the
// teacher's ticker-driven collector goroutine. It also drains the
// manager's internal event stream and logs each occurrence — the
// counters themselves are incremented directly at the call site inside
// pkg/manager, so this is a diagnostic log, not a second counter path.
type Collector struct {
	source statsSource
	events events.Subscriber
	stopCh chan struct{}
}

// NewCollector creates a metrics collector for mgr.
func NewCollector(mgr *manager.Manager) *Collector {
	return &Collector{
		source: mgr,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting on a 15s interval, same cadence as the teacher's
// cluster-state collector, and starts the event-log drain goroutine.
func (c *Collector) Start() {
	c.events = c.source.Subscribe()
	go c.drainEvents()

	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.source.Unsubscribe(c.events)
}

func (c *Collector) drainEvents() {
	logger := log.WithComponent("metrics")
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			logger.Debug().Str("type", string(ev.Type)).Str("key", ev.Key).
				Int("count", ev.Count).Msg("store event")
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) collect() {
	stats := c.source.CollectStats()

	KeysTotal.WithLabelValues("memory").Set(float64(stats.MemoryKeys))
	KeysTotal.WithLabelValues("disk").Set(float64(stats.DiskKeys))

	for _, kind := range []string{"string", "list", "hash", "set"} {
		KeysByType.WithLabelValues(kind).Set(float64(stats.KeysByType[kind]))
	}

	CacheHitRatio.Set(stats.HitRatio)
	TransactionsActive.Set(float64(stats.PendingTxns))
}
