package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Coordinator state machine metrics
	ServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hyperfold_servers_total",
			Help: "Total number of servers by state",
		},
		[]string{"state"},
	)

	SpacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_spaces_total",
			Help: "Total number of spaces",
		},
	)

	RegionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_regions_total",
			Help: "Total number of regions across all spaces",
		},
	)

	TransfersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_transfers_in_flight",
			Help: "Total number of transfers currently in progress",
		},
	)

	ConfigurationVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_configuration_version",
			Help: "Current configuration version",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hyperfold_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Coordinator command metrics
	CoordinatorApplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyperfold_coordinator_apply_duration_seconds",
			Help:    "Time taken to apply a coordinator command, by command name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	CoordinatorCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperfold_coordinator_commands_total",
			Help: "Total number of coordinator commands applied, by command name and result",
		},
		[]string{"command", "result"},
	)

	BarrierAdvanceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hyperfold_barrier_advance_duration_seconds",
			Help:    "Time between a barrier opening and its minimum-uncompleted version advancing",
			Buckets: prometheus.DefBuckets,
		},
	)

	RegionConvergenceCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperfold_region_convergence_cycles_total",
			Help: "Total number of rebalance/convergence passes the coordinator has run",
		},
	)

	TransfersStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperfold_transfers_started_total",
			Help: "Total number of region transfers started",
		},
	)

	// Client dispatch metrics
	ClientDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyperfold_client_dispatch_duration_seconds",
			Help:    "Time from dispatching an operation to its pending entry becoming yieldable, by op kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ClientPendingOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfold_client_pending_ops",
			Help: "Current number of pending client operations awaiting a reply",
		},
	)

	ClientReconfigureEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperfold_client_reconfigure_events_total",
			Help: "Total number of pending ops failed with RECONFIGURE due to a configuration change",
		},
	)

	// Daemon link metrics
	DaemonLinkReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperfold_daemonlink_reconnects_total",
			Help: "Total number of reconnect attempts a daemon link has made, by server id",
		},
		[]string{"server_id"},
	)

	DaemonLinkBackoff = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hyperfold_daemonlink_backoff_seconds",
			Help: "Current backoff delay before a daemon link's next reconnect attempt",
		},
		[]string{"server_id"},
	)

	// Storage metrics
	StorageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyperfold_storage_op_duration_seconds",
			Help:    "Time taken for a storage operation, by op kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(ServersTotal)
	prometheus.MustRegister(SpacesTotal)
	prometheus.MustRegister(RegionsTotal)
	prometheus.MustRegister(TransfersInFlight)
	prometheus.MustRegister(ConfigurationVersion)

	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)

	prometheus.MustRegister(CoordinatorApplyDuration)
	prometheus.MustRegister(CoordinatorCommandsTotal)
	prometheus.MustRegister(BarrierAdvanceDuration)
	prometheus.MustRegister(RegionConvergenceCyclesTotal)
	prometheus.MustRegister(TransfersStartedTotal)

	prometheus.MustRegister(ClientDispatchDuration)
	prometheus.MustRegister(ClientPendingOps)
	prometheus.MustRegister(ClientReconfigureEventsTotal)

	prometheus.MustRegister(DaemonLinkReconnectsTotal)
	prometheus.MustRegister(DaemonLinkBackoff)

	prometheus.MustRegister(StorageOpDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
