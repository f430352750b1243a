package metrics

import (
	"time"

	"github.com/cuemby/hyperfold/pkg/types"
)

// CoordinatorSource is the subset of *coordinator.Coordinator the
// collector needs, named here (rather than imported) to avoid a
// pkg/metrics <-> pkg/coordinator import cycle.
type CoordinatorSource interface {
	Configuration() *types.Configuration
	IsLeader() bool
}

// Collector periodically snapshots a coordinator's configuration into
// the package's gauges, generalizing the teacher's poll-on-a-ticker
// Collector from cluster entity counts to hyperspace configuration
// counts.
type Collector struct {
	coord  CoordinatorSource
	stopCh chan struct{}
}

// NewCollector creates a metrics collector polling coord.
func NewCollector(coord CoordinatorSource) *Collector {
	return &Collector{
		coord:  coord,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
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
}

func (c *Collector) collect() {
	c.collectRaftMetrics()

	cfg := c.coord.Configuration()
	if cfg == nil {
		return
	}
	c.collectServerMetrics(cfg)
	c.collectSpaceMetrics(cfg)
}

func (c *Collector) collectServerMetrics(cfg *types.Configuration) {
	counts := make(map[types.ServerState]int)
	for _, srv := range cfg.Servers {
		counts[srv.State]++
	}
	for state, count := range counts {
		ServersTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

func (c *Collector) collectSpaceMetrics(cfg *types.Configuration) {
	SpacesTotal.Set(float64(len(cfg.Spaces)))

	var regions, transfers float64
	for _, sp := range cfg.Spaces {
		for _, ss := range sp.Subspaces {
			regions += float64(len(ss.Regions))
		}
	}
	transfers = float64(len(cfg.Transfers))

	RegionsTotal.Set(regions)
	TransfersInFlight.Set(transfers)
	ConfigurationVersion.Set(float64(cfg.Version))
}

func (c *Collector) collectRaftMetrics() {
	if c.coord.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
}
