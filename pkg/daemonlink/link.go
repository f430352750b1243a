// Package daemonlink implements one storage daemon's connection to the
// coordinator's state machine: two long-lived follows on the coordinator's
// config and checkpoint condition variables, a cached configuration, and
// the idempotent outbound notifications (config_ack, config_stable,
// checkpoint_report_stable, transfer_go_live, transfer_complete,
// report_tcp_disconnect) a daemon retries until the coordinator confirms
// receipt.
//
// Grounded on pkg/worker/health_monitor.go's ticker-loop-with-stopCh
// pattern, narrowed from a fixed polling interval to the condition
// variables' push-on-change delivery and widened with an error-driven
// exponential backoff the health monitor has no equivalent of.
package daemonlink

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/hyperfold/pkg/log"
	"github.com/cuemby/hyperfold/pkg/types"
)

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 20 * time.Second
)

// nextBackoff advances cur one step along the 0, 100ms, 200ms, 400ms, ...,
// 20s schedule, doubling until the cap.
func nextBackoff(cur time.Duration) time.Duration {
	if cur <= 0 {
		return initialBackoff
	}
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// Coordinator is the subset of *coordinator.Coordinator a Link depends on.
// Declared here so this package never imports pkg/coordinator directly,
// the same decoupling pkg/client's ConfigSource gets.
type Coordinator interface {
	Configuration() *types.Configuration
	SubscribeConfig() <-chan uint64
	SubscribeCheckpoint() <-chan uint64

	ServerOnline(id types.ServerID, bindTo string) (types.ReturnCode, error)
	ServerSuspect(id types.ServerID) (types.ReturnCode, error)
	ConfigAck(server types.ServerID, version uint64) (types.ReturnCode, error)
	ConfigStable(server types.ServerID, version uint64) (types.ReturnCode, error)
	CheckpointStable(server types.ServerID, configVersion, checkpointNumber uint64) (types.ReturnCode, error)
	TransferGoLive(version uint64, transferID types.TransferID) (types.ReturnCode, error)
	TransferComplete(version uint64, transferID types.TransferID) (types.ReturnCode, error)
}

// Callbacks are a daemon's reactions to link events. Every field is
// optional; a nil callback is simply skipped.
type Callbacks struct {
	// InstallConfig is called once per strictly-newer configuration in
	// which this server is listed in any state other than NOT_AVAILABLE.
	// The daemon should update its local
	// routing state and, once settled, call Link.ConfigAck and (once
	// transfers referencing it have drained) Link.ConfigStable.
	InstallConfig func(cfg *types.Configuration)

	// CheckpointAdvanced is called with a newly observed checkpoint
	// number, letting the daemon force its storage layer to observe the
	// checkpoint boundary before reporting it stable.
	CheckpointAdvanced func(checkpoint uint64)
}

// counters mirrors the coordinator-side values this daemon has last seen
// or last reported, per the follow handle's "four counters" bookkeeping.
type counters struct {
	configVersion    uint64 // last configuration version installed locally
	configAcked      uint64 // last version this daemon sent config_ack for
	checkpoint       uint64 // last checkpoint number observed
	checkpointStable uint64 // last checkpoint number this daemon reported stable
}

// Link is one daemon's live connection to the coordinator.
type Link struct {
	serverID types.ServerID
	bindTo   string
	coord    Coordinator
	cb       Callbacks
	logger   zerolog.Logger

	configCh     <-chan uint64
	checkpointCh <-chan uint64

	config   *types.Configuration
	counters counters
}

// New builds a Link for serverID, reachable at bindTo (the address
// ServerOnline retransmits if the coordinator still has it marked
// NOT_AVAILABLE).
func New(serverID types.ServerID, bindTo string, coord Coordinator, cb Callbacks) *Link {
	return &Link{
		serverID: serverID,
		bindTo:   bindTo,
		coord:    coord,
		cb:       cb,
		logger:   log.WithServerID(uint64(serverID)).With().Str("component", "daemonlink").Logger(),
	}
}

// Run drives the follow loop until ctx is cancelled, sleeping with
// exponential backoff between failed iterations and resetting to zero
// after every iteration that makes progress.
func (l *Link) Run(ctx context.Context) {
	l.configCh = l.coord.SubscribeConfig()
	l.checkpointCh = l.coord.SubscribeCheckpoint()

	backoff := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := l.iterate(ctx); err != nil {
			l.logger.Warn().Err(err).Dur("backoff", backoff).Msg("daemonlink: iteration failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = 0
	}
}

// iterate waits for either follow to deliver a value (or ctx to be
// cancelled) and handles whichever arrives first.
func (l *Link) iterate(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-l.configCh:
		return l.handleConfig()
	case n := <-l.checkpointCh:
		return l.handleCheckpoint(n)
	}
}

// handleConfig reacts to a config condition-variable broadcast: it
// re-reads the authoritative configuration, and either retransmits
// server_online (if the coordinator still thinks this server is
// NOT_AVAILABLE) or installs it and invokes InstallConfig.
func (l *Link) handleConfig() error {
	cfg := l.coord.Configuration()
	if cfg == nil || cfg.Version <= l.counters.configVersion {
		return nil
	}

	srv, ok := cfg.ServerByID(l.serverID)
	if !ok || srv.State == types.ServerNotAvailable {
		_, err := l.coord.ServerOnline(l.serverID, l.bindTo)
		return err
	}

	l.config = cfg
	l.counters.configVersion = cfg.Version
	if l.cb.InstallConfig != nil {
		l.cb.InstallConfig(cfg)
	}
	return nil
}

// handleCheckpoint reacts to a checkpoint condition-variable broadcast by
// forwarding the new checkpoint number to the daemon so it can force its
// storage layer to observe the boundary.
func (l *Link) handleCheckpoint(number uint64) error {
	if number <= l.counters.checkpoint {
		return nil
	}
	l.counters.checkpoint = number
	if l.cb.CheckpointAdvanced != nil {
		l.cb.CheckpointAdvanced(number)
	}
	return nil
}

// Configuration returns the last configuration this link installed.
func (l *Link) Configuration() *types.Configuration {
	return l.config
}
