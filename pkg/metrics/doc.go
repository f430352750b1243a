/*
Package metrics provides Prometheus metrics collection and exposition for hyperfold.

The metrics package defines and registers all hyperfold metrics using the Prometheus
client library, providing observability into coordinator state, Raft, command
application, client dispatch, the daemon link and storage. Metrics are exposed via
HTTP endpoint for scraping by Prometheus servers.

# Architecture

hyperfold's metrics system follows Prometheus best practices:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (node count)         │          │
	│  │  Counter: Monotonic increases (requests)    │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  │  Summary: Quantiles (percentiles)           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Coordinator: Servers, spaces, commands     │          │
	│  │  Raft: Leader status, log index, peers      │          │
	│  │  Client: Dispatch latency, pending ops      │          │
	│  │  Daemon link: Reconnects, backoff           │          │
	│  │  Storage: Operation duration                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: servers by state, configuration version, Raft leader status
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: coordinator commands total, transfers started total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: coordinator apply duration, client dispatch duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Every histogram uses the default Prometheus buckets (prometheus.DefBuckets).

Coordinator State Metrics:

hyperfold_servers_total{state}:
  - Type: Gauge (ServersTotal)
  - Description: Servers by lifecycle state
  - Labels: state

hyperfold_spaces_total:
  - Type: Gauge (SpacesTotal)
  - Description: Number of spaces

hyperfold_regions_total:
  - Type: Gauge (RegionsTotal)
  - Description: Number of regions across all spaces

hyperfold_transfers_in_flight:
  - Type: Gauge (TransfersInFlight)
  - Description: Region transfers in progress

hyperfold_configuration_version:
  - Type: Gauge (ConfigurationVersion)
  - Description: Current configuration version

Raft Metrics:

hyperfold_raft_is_leader:
  - Type: Gauge (RaftLeader)
  - Description: Whether this node is Raft leader (1=leader, 0=follower)

hyperfold_raft_peers_total:
  - Type: Gauge (RaftPeers)
  - Description: Raft peers in the cluster

hyperfold_raft_log_index:
  - Type: Gauge (RaftLogIndex)
  - Description: Current Raft log index

hyperfold_raft_applied_index:
  - Type: Gauge (RaftAppliedIndex)
  - Description: Last applied Raft log index

hyperfold_raft_apply_duration_seconds:
  - Type: Histogram (RaftApplyDuration)
  - Description: Time to apply a Raft log entry

Coordinator Command Metrics:

hyperfold_coordinator_apply_duration_seconds{command}:
  - Type: Histogram (CoordinatorApplyDuration)
  - Description: Time to apply a coordinator command
  - Labels: command

hyperfold_coordinator_commands_total{command, result}:
  - Type: Counter (CoordinatorCommandsTotal)
  - Description: Coordinator commands applied, by command and result
  - Labels: command, result

hyperfold_barrier_advance_duration_seconds:
  - Type: Histogram (BarrierAdvanceDuration)
  - Description: Time between a barrier opening and its minimum-uncompleted version advancing

hyperfold_region_convergence_cycles_total:
  - Type: Counter (RegionConvergenceCyclesTotal)
  - Description: Region convergence passes run

hyperfold_transfers_started_total:
  - Type: Counter (TransfersStartedTotal)
  - Description: Region transfers started

Client Metrics:

hyperfold_client_dispatch_duration_seconds{kind}:
  - Type: Histogram (ClientDispatchDuration)
  - Description: Client operation dispatch duration
  - Labels: kind

hyperfold_client_pending_ops:
  - Type: Gauge (ClientPendingOps)
  - Description: Client operations awaiting a reply

hyperfold_client_reconfigure_events_total:
  - Type: Counter (ClientReconfigureEventsTotal)
  - Description: Pending ops failed with RECONFIGURE after a configuration change

Daemon Link Metrics:

hyperfold_daemonlink_reconnects_total{server_id}:
  - Type: Counter (DaemonLinkReconnectsTotal)
  - Description: Coordinator reconnect attempts by a daemon link
  - Labels: server_id

hyperfold_daemonlink_backoff_seconds{server_id}:
  - Type: Gauge (DaemonLinkBackoff)
  - Description: Current reconnect backoff of a daemon link
  - Labels: server_id

Storage Metrics:

hyperfold_storage_op_duration_seconds{op}:
  - Type: Histogram (StorageOpDuration)
  - Description: Storage operation duration
  - Labels: op

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/hyperfold/pkg/metrics"

	// Set absolute value
	metrics.ServersTotal.WithLabelValues("AVAILABLE").Set(5)

	// Increment/decrement
	metrics.ClientPendingOps.Inc()
	metrics.ClientPendingOps.Dec()

Updating Counter Metrics:

	// Increment by 1
	metrics.TransfersStartedTotal.Inc()

	// Add arbitrary value
	metrics.CoordinatorCommandsTotal.WithLabelValues("space_add", "SUCCESS").Add(1)

Recording Histogram Observations:

	// Direct observation
	metrics.RaftApplyDuration.Observe(0.125) // 125ms

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.BarrierAdvanceDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.CoordinatorApplyDuration, "space_add")

Complete Example:

	package main

	import (
		"net/http"
		"time"
		"github.com/cuemby/hyperfold/pkg/metrics"
	)

	func main() {
		// Update coordinator state metrics
		metrics.ServersTotal.WithLabelValues("AVAILABLE").Set(5)
		metrics.SpacesTotal.Set(2)
		metrics.RegionsTotal.Set(16)

		// Time an operation
		timer := metrics.NewTimer()
		applyEntry()
		timer.ObserveDuration(metrics.RaftApplyDuration)

		// Expose metrics endpoint
		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

	func applyEntry() {
		// Log entry application logic
		time.Sleep(100 * time.Millisecond)
	}

# Integration Points

This package integrates with:

  - pkg/coordinator: times command application (CoordinatorApplyDuration)
  - pkg/client: tracks pending ops and RECONFIGURE failures
  - cmd/coordinatord: starts the Collector and serves /metrics and the
    health endpoints
  - cmd/storaged: serves /metrics and the health endpoints
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any hyperfold package
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Total: ~1-5MB for typical hyperfold cluster

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: role, status, state (< 10 values)
  - Medium cardinality: method, host (< 100 values)
  - Avoid: task IDs, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Server Health:
  - Servers by state: sum by (state) (hyperfold_servers_total)
  - Available servers: hyperfold_servers_total{state="AVAILABLE"}

Coordinator Activity:
  - Command rate: rate(hyperfold_coordinator_commands_total[1m])
  - p95 apply latency: histogram_quantile(0.95, hyperfold_coordinator_apply_duration_seconds_bucket)
  - Transfers in flight: hyperfold_transfers_in_flight
  - Transfer start rate: rate(hyperfold_transfers_started_total[5m])

Raft Health:
  - Has leader: max(hyperfold_raft_is_leader) > 0
  - Leader changes: changes(hyperfold_raft_is_leader[10m])
  - Log lag: hyperfold_raft_log_index - hyperfold_raft_applied_index
  - Peer count: hyperfold_raft_peers_total

Client Performance:
  - p95 dispatch latency: histogram_quantile(0.95, hyperfold_client_dispatch_duration_seconds_bucket)
  - RECONFIGURE failure rate: rate(hyperfold_client_reconfigure_events_total[5m])

# Alerting Rules

Recommended Prometheus alerts:

No Raft Leader:
  - Alert: max(hyperfold_raft_is_leader) == 0
  - Description: Cluster has no Raft leader
  - Action: Check coordinator connectivity, quorum status

Frequent Leader Changes:
  - Alert: changes(hyperfold_raft_is_leader[10m]) > 3
  - Description: Leader changed more than 3 times in 10 minutes
  - Action: Check network latency, coordinator load

High Command Apply Latency:
  - Alert: histogram_quantile(0.95, hyperfold_coordinator_apply_duration_seconds_bucket) > 1
  - Description: p95 command apply latency > 1 second
  - Action: Check Raft performance, snapshot size

# Grafana Dashboards

Recommended dashboard panels:

Cluster Overview:
  - Gauge: Servers by state
  - Gauge: Spaces and regions
  - Time series: Transfers in flight

Coordinator Performance:
  - Time series: Command rate by command
  - Time series: p95 and p99 apply latency

Raft Health:
  - Single stat: Leader status (yes/no)
  - Time series: Log index and applied index
  - Single stat: Peer count
  - Time series: Leader changes

Client Performance:
  - Time series: Pending ops
  - Heatmap: Dispatch latency distribution

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
