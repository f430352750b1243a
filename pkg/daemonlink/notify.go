package daemonlink

import (
	"context"
	"time"

	"github.com/cuemby/hyperfold/pkg/types"
)

// retry calls fn until it returns a nil error with Success, backing off
// exponentially between attempts. Any error, and any other ReturnCode
// (Malformed and NoCanDo included), is logged and retried. It returns only
// when ctx is cancelled or fn succeeds.
func retry(ctx context.Context, logger func(err error, code types.ReturnCode), fn func() (types.ReturnCode, error)) {
	backoff := time.Duration(0)
	for {
		code, err := fn()
		if err == nil && code == types.Success {
			return
		}
		if logger != nil {
			logger(err, code)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// ConfigAck notifies the coordinator this daemon has installed version,
// retrying with backoff until acknowledged. Idempotent: the coordinator's
// barrier tracks acknowledgment per server per version, so a repeated call
// after one already landed is a harmless no-op.
func (l *Link) ConfigAck(ctx context.Context, version uint64) {
	retry(ctx, func(err error, code types.ReturnCode) {
		l.logger.Warn().Err(err).Str("code", string(code)).Uint64("version", version).Msg("daemonlink: config_ack retry")
	}, func() (types.ReturnCode, error) {
		return l.coord.ConfigAck(l.serverID, version)
	})
	l.counters.configAcked = version
}

// ConfigStable notifies the coordinator this daemon has no transfers left
// referencing a configuration older than version.
func (l *Link) ConfigStable(ctx context.Context, version uint64) {
	retry(ctx, func(err error, code types.ReturnCode) {
		l.logger.Warn().Err(err).Str("code", string(code)).Uint64("version", version).Msg("daemonlink: config_stable retry")
	}, func() (types.ReturnCode, error) {
		return l.coord.ConfigStable(l.serverID, version)
	})
}

// CheckpointReportStable notifies the coordinator this daemon's storage
// layer has durably observed checkpointNumber under configVersion.
func (l *Link) CheckpointReportStable(ctx context.Context, configVersion, checkpointNumber uint64) {
	retry(ctx, func(err error, code types.ReturnCode) {
		l.logger.Warn().Err(err).Str("code", string(code)).Uint64("checkpoint", checkpointNumber).Msg("daemonlink: checkpoint_report_stable retry")
	}, func() (types.ReturnCode, error) {
		return l.coord.CheckpointStable(l.serverID, configVersion, checkpointNumber)
	})
	if checkpointNumber > l.counters.checkpointStable {
		l.counters.checkpointStable = checkpointNumber
	}
}

// TransferGoLive notifies the coordinator this daemon's end of transferID
// has become the chain's tail under version.
func (l *Link) TransferGoLive(ctx context.Context, version uint64, transferID types.TransferID) {
	retry(ctx, func(err error, code types.ReturnCode) {
		l.logger.Warn().Err(err).Str("code", string(code)).Uint64("transfer_id", uint64(transferID)).Msg("daemonlink: transfer_go_live retry")
	}, func() (types.ReturnCode, error) {
		return l.coord.TransferGoLive(version, transferID)
	})
}

// TransferComplete notifies the coordinator transferID's source replica
// can be retired.
func (l *Link) TransferComplete(ctx context.Context, version uint64, transferID types.TransferID) {
	retry(ctx, func(err error, code types.ReturnCode) {
		l.logger.Warn().Err(err).Str("code", string(code)).Uint64("transfer_id", uint64(transferID)).Msg("daemonlink: transfer_complete retry")
	}, func() (types.ReturnCode, error) {
		return l.coord.TransferComplete(version, transferID)
	})
}

// ReportTCPDisconnect notifies the coordinator this daemon lost its
// connection to peer, so the coordinator can mark it suspect and begin
// reconfiguring around it. Unlike the other notifications this one isn't
// retried against a fixed target value: if peer recovers and reconnects
// before the retry succeeds, the daemon should cancel ctx itself.
func (l *Link) ReportTCPDisconnect(ctx context.Context, peer types.ServerID) {
	retry(ctx, func(err error, code types.ReturnCode) {
		l.logger.Warn().Err(err).Str("code", string(code)).Uint64("peer", uint64(peer)).Msg("daemonlink: report_tcp_disconnect retry")
	}, func() (types.ReturnCode, error) {
		return l.coord.ServerSuspect(peer)
	})
}
