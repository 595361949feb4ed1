/*
Package metrics registers the store's Prometheus metrics and exposes the
HTTP handlers (/metrics, /health, /ready, /live) used by the metrics
server started alongside the TCP listener.

# Metric families

	kvstore_keys_total{residency}           gauge    live key count, memory vs. disk
	kvstore_keys_by_type{type}              gauge    live key count by value type
	kvstore_commands_total{verb,outcome}    counter  commands served, by verb and ok/error
	kvstore_command_duration_seconds{verb}  histogram per-command latency
	kvstore_connections_active             gauge    open TCP connections
	kvstore_connections_total              counter  connections accepted since start
	kvstore_transactions_active            gauge    open explicit transactions
	kvstore_transactions_total{outcome}    counter  committed/rolled_back/timed_out
	kvstore_wal_appends_total              counter  WAL entries written
	kvstore_wal_append_duration_seconds    histogram per-append fsync latency
	kvstore_wal_checkpoints_total          counter  checkpoints taken
	kvstore_wal_compactions_total          counter  compactions run
	kvstore_memory_pressure_level          gauge    0 (none) .. 10 (maximum)
	kvstore_cache_hit_ratio                gauge    ensureLoaded hit ratio, 0..1
	kvstore_offloads_total                 counter  keys evicted to cold storage
	kvstore_loads_total                    counter  cold keys paged back into memory
	kvstore_expired_keys_total             counter  keys removed by TTL expiry

Everything is registered against the default Prometheus registry at
package init, so importing this package for its side effects is enough
to make the metrics visible on Handler().

# Health

health.go tracks named components (wal, store, server, ...) with
RegisterComponent/UpdateComponent. ReadyHandler reports not-ready until
every component on the critical list is healthy; HealthHandler and
LivenessHandler are looser liveness probes.
*/
package metrics
