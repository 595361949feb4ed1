package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	KeysTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kvstore_keys_total",
			Help: "Total number of keys by residency (memory, disk)",
		},
		[]string{"residency"},
	)

	KeysByType = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kvstore_keys_by_type",
			Help: "Total number of memory-resident keys by value type",
		},
		[]string{"type"},
	)

	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvstore_commands_total",
			Help: "Total number of commands executed by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvstore_command_duration_seconds",
			Help:    "Command execution duration in seconds by verb",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// Connection metrics
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvstore_connections_active",
			Help: "Number of currently open client connections",
		},
	)

	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvstore_connections_total",
			Help: "Total number of client connections accepted",
		},
	)

	// Transaction metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvstore_transactions_total",
			Help: "Total number of transactions by outcome (committed, rolled_back, timed_out)",
		},
		[]string{"outcome"},
	)

	TransactionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvstore_transactions_active",
			Help: "Number of currently active transactions",
		},
	)

	// WAL metrics
	WALAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvstore_wal_appends_total",
			Help: "Total number of entries appended to the write-ahead log",
		},
	)

	WALAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvstore_wal_append_duration_seconds",
			Help:    "Time taken to append and fsync a WAL entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WALCheckpointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvstore_wal_checkpoints_total",
			Help: "Total number of checkpoints written",
		},
	)

	WALCompactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvstore_wal_compactions_total",
			Help: "Total number of WAL compaction passes completed",
		},
	)

	// Memory pressure metrics
	MemoryPressureLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvstore_memory_pressure_level",
			Help: "Current memory pressure level, 0-10",
		},
	)

	CacheHitRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvstore_cache_hit_ratio",
			Help: "Running ratio of memory-resident hits to total lookups",
		},
	)

	OffloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvstore_offloads_total",
			Help: "Total number of keys moved to disk due to memory pressure",
		},
	)

	LoadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvstore_loads_total",
			Help: "Total number of cold keys loaded back from disk",
		},
	)

	// Expiry metrics
	ExpiredKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvstore_expired_keys_total",
			Help: "Total number of keys removed by the expiry sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(KeysTotal)
	prometheus.MustRegister(KeysByType)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionsActive)
	prometheus.MustRegister(WALAppendsTotal)
	prometheus.MustRegister(WALAppendDuration)
	prometheus.MustRegister(WALCheckpointsTotal)
	prometheus.MustRegister(WALCompactionsTotal)
	prometheus.MustRegister(MemoryPressureLevel)
	prometheus.MustRegister(CacheHitRatio)
	prometheus.MustRegister(OffloadsTotal)
	prometheus.MustRegister(LoadsTotal)
	prometheus.MustRegister(ExpiredKeysTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
