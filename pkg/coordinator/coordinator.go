package coordinator

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"github.com/rs/zerolog"

	"github.com/cuemby/hyperfold/pkg/log"
	"github.com/cuemby/hyperfold/pkg/metrics"
	"github.com/cuemby/hyperfold/pkg/types"
)

// Config configures a Coordinator's raft transport and storage. Grounded
// on pkg/manager/manager.go's Bootstrap/Join configuration surface.
type Config struct {
	ServerID      string
	BindAddr      string
	DataDir       string
	Bootstrap     bool
	ClusterToken  uint64
}

// Coordinator wraps a raft.Raft instance around state/FSM and exposes one
// method per command in the command catalogue, each building a Command and
// calling raft Apply. Grounded on pkg/manager/manager.go's Manager: the
// Bootstrap/Join lifecycle, the tuned heartbeat/election timeouts, and the
// "every mutator is an Apply(Command) wrapper" idiom, generalized from
// orchestrator entities to coordinator state-machine commands.
type Coordinator struct {
	raft   *raft.Raft
	state  *state
	fsm    *FSM
	cond   *condVars
	logger zerolog.Logger
}

func New(cfg Config) (*Coordinator, error) {
	st := newState()
	cond := newCondVars()
	fsm := newFSM(st, cond)

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.ServerID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("coordinator: create data dir: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create raft node: %w", err)
	}

	c := &Coordinator{
		raft:   r,
		state:  st,
		fsm:    fsm,
		cond:   cond,
		logger: log.WithComponent("coordinator"),
	}

	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil {
			return nil, fmt.Errorf("coordinator: bootstrap cluster: %w", err)
		}
	}

	return c, nil
}

// IsLeader reports whether this node currently holds raft leadership.
func (c *Coordinator) IsLeader() bool {
	return c.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's transport address, if known.
func (c *Coordinator) LeaderAddr() string {
	addr, _ := c.raft.LeaderWithID()
	return string(addr)
}

// AddVoter adds a new voting member to the raft cluster; only the leader
// can perform this successfully.
func (c *Coordinator) AddVoter(id, addr string) error {
	return c.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 10*time.Second).Error()
}

// RemoveServer removes a member from the raft cluster.
func (c *Coordinator) RemoveServer(id string) error {
	return c.raft.RemoveServer(raft.ServerID(id), 0, 10*time.Second).Error()
}

// Shutdown stops the raft node.
func (c *Coordinator) Shutdown() error {
	return c.raft.Shutdown().Error()
}

// Configuration returns the current cached configuration snapshot — the
// read path every other package consults for routing.
func (c *Coordinator) Configuration() *types.Configuration {
	return c.state.configuration()
}

// SubscribeConfig returns a channel delivering the version number each
// time the configuration condition variable broadcasts.
func (c *Coordinator) SubscribeConfig() <-chan uint64 {
	return c.cond.subscribeConfig()
}

// SubscribeCheckpoint returns a channel delivering the checkpoint number
// each time the checkpoint condition variable broadcasts.
func (c *Coordinator) SubscribeCheckpoint() <-chan uint64 {
	return c.cond.subscribeCheckpoint()
}

// SubscribeAck returns a channel delivering the configuration version each
// time the config_ack_barrier's minimum-uncompleted version advances, i.e.
// every server in that version's membership has called ConfigAck.
func (c *Coordinator) SubscribeAck() <-chan uint64 {
	return c.cond.subscribeAck()
}

// SubscribeStable returns a channel delivering the configuration version
// each time the config_stable_barrier advances, the ConfigStable
// counterpart of SubscribeAck.
func (c *Coordinator) SubscribeStable() <-chan uint64 {
	return c.cond.subscribeStable()
}

// SubscribeCheckpointStable returns a channel delivering the checkpoint
// number each time every server in that checkpoint's membership has called
// CheckpointStable.
func (c *Coordinator) SubscribeCheckpointStable() <-chan uint64 {
	return c.cond.subscribeCheckpointStable()
}

// CheckpointNumber returns the latest checkpoint number. A remote daemon
// polling the admin API has no condition variable to block on, so it
// reads this alongside Configuration and diffs it locally.
func (c *Coordinator) CheckpointNumber() uint64 {
	return c.state.checkpointNumber()
}

// apply marshals op/data as a Command, submits it through raft, and
// unwraps the applyResult. Grounded on pkg/manager/manager.go's
// Apply(cmd Command) error, extended to surface the command's
// ReturnCode rather than only a Go error — every command here yields a
// result code even on success.
func (c *Coordinator) apply(op string, data interface{}) (types.ReturnCode, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return types.Malformed, fmt.Errorf("coordinator: marshal %s: %w", op, err)
	}
	cmdBytes, err := json.Marshal(Command{Op: op, Data: raw})
	if err != nil {
		return types.Malformed, fmt.Errorf("coordinator: marshal command %s: %w", op, err)
	}

	timer := metrics.NewTimer()
	future := c.raft.Apply(cmdBytes, 5*time.Second)
	if err := future.Error(); err != nil {
		return "", fmt.Errorf("coordinator: raft apply %s: %w", op, err)
	}
	timer.ObserveDurationVec(metrics.CoordinatorApplyDuration, op)

	result, ok := future.Response().(applyResult)
	if !ok {
		return types.Malformed, fmt.Errorf("coordinator: unexpected apply response type for %s", op)
	}
	return result.Code, nil
}

func (c *Coordinator) Init(clusterToken uint64) (types.ReturnCode, error) {
	return c.apply(opInit, struct {
		ClusterToken uint64 `json:"cluster_token"`
	}{clusterToken})
}

func (c *Coordinator) ReadOnly(readOnly bool) (types.ReturnCode, error) {
	return c.apply(opReadOnly, struct {
		ReadOnly bool `json:"read_only"`
	}{readOnly})
}

func (c *Coordinator) FaultTolerance(spaceName string, r int) (types.ReturnCode, error) {
	return c.apply(opFaultTolerance, struct {
		SpaceName string `json:"space_name"`
		R         int    `json:"r"`
	}{spaceName, r})
}

func (c *Coordinator) ServerRegister(id types.ServerID, bindTo string) (types.ReturnCode, error) {
	return c.apply(opServerRegister, struct {
		ID     types.ServerID `json:"id"`
		BindTo string         `json:"bind_to"`
	}{id, bindTo})
}

func (c *Coordinator) ServerOnline(id types.ServerID, bindTo string) (types.ReturnCode, error) {
	return c.apply(opServerOnline, struct {
		ID     types.ServerID `json:"id"`
		BindTo string         `json:"bind_to"`
	}{id, bindTo})
}

func (c *Coordinator) ServerOffline(id types.ServerID) (types.ReturnCode, error) {
	return c.apply(opServerOffline, struct {
		ID types.ServerID `json:"id"`
	}{id})
}

func (c *Coordinator) ServerShutdown(id types.ServerID) (types.ReturnCode, error) {
	return c.apply(opServerShutdown, struct {
		ID types.ServerID `json:"id"`
	}{id})
}

func (c *Coordinator) ServerKill(id types.ServerID) (types.ReturnCode, error) {
	return c.apply(opServerKill, struct {
		ID types.ServerID `json:"id"`
	}{id})
}

func (c *Coordinator) ServerForget(id types.ServerID) (types.ReturnCode, error) {
	return c.apply(opServerForget, struct {
		ID types.ServerID `json:"id"`
	}{id})
}

func (c *Coordinator) ServerSuspect(id types.ServerID) (types.ReturnCode, error) {
	return c.apply(opServerSuspect, struct {
		ID types.ServerID `json:"id"`
	}{id})
}

func (c *Coordinator) SpaceAdd(sp types.Space) (types.ReturnCode, error) {
	return c.apply(opSpaceAdd, sp)
}

func (c *Coordinator) SpaceRm(name string) (types.ReturnCode, error) {
	return c.apply(opSpaceRm, struct {
		Name string `json:"name"`
	}{name})
}

func (c *Coordinator) SpaceMv(oldName, newName string) (types.ReturnCode, error) {
	return c.apply(opSpaceMv, struct {
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	}{oldName, newName})
}

func (c *Coordinator) IndexAdd(spaceName string, attr int) (types.ReturnCode, error) {
	return c.apply(opIndexAdd, struct {
		SpaceName string `json:"space_name"`
		Attr      int    `json:"attr"`
	}{spaceName, attr})
}

func (c *Coordinator) IndexRm(spaceName string, indexID types.IndexID) (types.ReturnCode, error) {
	return c.apply(opIndexRm, struct {
		SpaceName string        `json:"space_name"`
		IndexID   types.IndexID `json:"index_id"`
	}{spaceName, indexID})
}

func (c *Coordinator) TransferGoLive(version uint64, transferID types.TransferID) (types.ReturnCode, error) {
	return c.apply(opTransferGoLive, struct {
		Version    uint64           `json:"version"`
		TransferID types.TransferID `json:"transfer_id"`
	}{version, transferID})
}

func (c *Coordinator) TransferComplete(version uint64, transferID types.TransferID) (types.ReturnCode, error) {
	return c.apply(opTransferComplete, struct {
		Version    uint64           `json:"version"`
		TransferID types.TransferID `json:"transfer_id"`
	}{version, transferID})
}

func (c *Coordinator) ConfigAck(server types.ServerID, version uint64) (types.ReturnCode, error) {
	return c.apply(opConfigAck, struct {
		Server  types.ServerID `json:"server"`
		Version uint64         `json:"version"`
	}{server, version})
}

func (c *Coordinator) ConfigStable(server types.ServerID, version uint64) (types.ReturnCode, error) {
	return c.apply(opConfigStable, struct {
		Server  types.ServerID `json:"server"`
		Version uint64         `json:"version"`
	}{server, version})
}

func (c *Coordinator) CheckpointStable(server types.ServerID, configVersion, checkpointNumber uint64) (types.ReturnCode, error) {
	return c.apply(opCheckpointStable, struct {
		Server           types.ServerID `json:"server"`
		ConfigVersion    uint64         `json:"config_version"`
		CheckpointNumber uint64         `json:"checkpoint_number"`
	}{server, configVersion, checkpointNumber})
}

func (c *Coordinator) Alarm() (types.ReturnCode, error) {
	return c.apply(opAlarm, struct{}{})
}

func (c *Coordinator) Checkpoint() (types.ReturnCode, error) {
	return c.apply(opCheckpoint, struct{}{})
}

// DebugDump returns the coordinator's diagnostic text dump. Write-only in
// the sense that it never feeds back into routing decisions.
func (c *Coordinator) DebugDump() (string, error) {
	raw, err := json.Marshal(Command{Op: opDebugDump})
	if err != nil {
		return "", err
	}
	future := c.raft.Apply(raw, 5*time.Second)
	if err := future.Error(); err != nil {
		return "", fmt.Errorf("coordinator: raft apply debug_dump: %w", err)
	}
	result, _ := future.Response().(applyResult)
	return result.Text, nil
}
