package coordinator

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/cuemby/hyperfold/pkg/types"
)

// Command is the single envelope every entry in the replicated log
// carries: an operation name and its JSON-encoded argument struct.
// Grounded on pkg/manager/fsm.go's Command{Op, Data}/type-switch dispatch
// pattern.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opInit              = "init"
	opReadOnly          = "read_only"
	opFaultTolerance    = "fault_tolerance"
	opServerRegister    = "server_register"
	opServerOnline      = "server_online"
	opServerOffline     = "server_offline"
	opServerShutdown    = "server_shutdown"
	opServerKill        = "server_kill"
	opServerForget      = "server_forget"
	opServerSuspect     = "server_suspect"
	opSpaceAdd          = "space_add"
	opSpaceRm           = "space_rm"
	opSpaceMv           = "space_mv"
	opIndexAdd          = "index_add"
	opIndexRm           = "index_rm"
	opTransferGoLive    = "transfer_go_live"
	opTransferComplete  = "transfer_complete"
	opConfigAck         = "config_ack"
	opConfigStable      = "config_stable"
	opCheckpointStable  = "checkpoint_stable"
	opAlarm             = "alarm"
	opCheckpoint        = "checkpoint"
	opDebugDump         = "debug_dump"
)

// applyResult is what Apply returns through raft's future.Response(); the
// coordinator's Apply wrapper type-asserts it back out.
type applyResult struct {
	Code types.ReturnCode
	Text string // only set by debug_dump
}

// FSM adapts state to raft.FSM. Grounded on pkg/manager/fsm.go's
// WarrenFSM: a mutex-free wrapper (state already locks itself) whose
// Apply unmarshals the command and dispatches by Op, whose Snapshot
// serializes the whole store as one JSON blob, and whose Restore rebuilds
// it — the same shape, generalized from orchestrator entities to
// hyperspace state.
type FSM struct {
	state *state
	cond  *condVars
}

func newFSM(st *state, cond *condVars) *FSM {
	return &FSM{state: st, cond: cond}
}

func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return applyResult{Code: types.Malformed}
	}

	versionBefore := f.state.version
	result := f.dispatch(cmd)
	if f.state.version != versionBefore {
		f.cond.broadcastConfig(f.state.version)
	}
	return result
}

func (f *FSM) dispatch(cmd Command) applyResult {
	s := f.state
	switch cmd.Op {
	case opInit:
		var d struct {
			ClusterToken uint64 `json:"cluster_token"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyInit(d.ClusterToken)}

	case opReadOnly:
		var d struct {
			ReadOnly bool `json:"read_only"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyReadOnly(d.ReadOnly)}

	case opFaultTolerance:
		var d struct {
			SpaceName string `json:"space_name"`
			R         int    `json:"r"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyFaultTolerance(d.SpaceName, d.R)}

	case opServerRegister:
		var d struct {
			ID     types.ServerID `json:"id"`
			BindTo string         `json:"bind_to"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyServerRegister(d.ID, d.BindTo)}

	case opServerOnline:
		var d struct {
			ID     types.ServerID `json:"id"`
			BindTo string         `json:"bind_to"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyServerOnline(d.ID, d.BindTo)}

	case opServerOffline:
		var d struct {
			ID types.ServerID `json:"id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyServerOffline(d.ID)}

	case opServerShutdown:
		var d struct {
			ID types.ServerID `json:"id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyServerShutdown(d.ID)}

	case opServerKill:
		var d struct {
			ID types.ServerID `json:"id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyServerKill(d.ID)}

	case opServerForget:
		var d struct {
			ID types.ServerID `json:"id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyServerForget(d.ID)}

	case opServerSuspect:
		var d struct {
			ID types.ServerID `json:"id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyServerSuspect(d.ID)}

	case opSpaceAdd:
		var sp types.Space
		if err := json.Unmarshal(cmd.Data, &sp); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applySpaceAdd(&sp)}

	case opSpaceRm:
		var d struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applySpaceRm(d.Name)}

	case opSpaceMv:
		var d struct {
			OldName string `json:"old_name"`
			NewName string `json:"new_name"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applySpaceMv(d.OldName, d.NewName)}

	case opIndexAdd:
		var d struct {
			SpaceName string `json:"space_name"`
			Attr      int    `json:"attr"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyIndexAdd(d.SpaceName, d.Attr)}

	case opIndexRm:
		var d struct {
			SpaceName string        `json:"space_name"`
			IndexID   types.IndexID `json:"index_id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyIndexRm(d.SpaceName, d.IndexID)}

	case opTransferGoLive:
		var d struct {
			Version    uint64           `json:"version"`
			TransferID types.TransferID `json:"transfer_id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyTransferGoLive(d.Version, d.TransferID)}

	case opTransferComplete:
		var d struct {
			Version    uint64           `json:"version"`
			TransferID types.TransferID `json:"transfer_id"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		return applyResult{Code: s.applyTransferComplete(d.Version, d.TransferID)}

	case opConfigAck:
		var d struct {
			Server  types.ServerID `json:"server"`
			Version uint64         `json:"version"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		code, advanced := s.applyConfigAck(d.Server, d.Version)
		if advanced {
			f.cond.broadcastAck(d.Version)
		}
		return applyResult{Code: code}

	case opConfigStable:
		var d struct {
			Server  types.ServerID `json:"server"`
			Version uint64         `json:"version"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		code, advanced := s.applyConfigStable(d.Server, d.Version)
		if advanced {
			f.cond.broadcastStable(d.Version)
		}
		return applyResult{Code: code}

	case opCheckpointStable:
		var d struct {
			Server            types.ServerID `json:"server"`
			ConfigVersion     uint64         `json:"config_version"`
			CheckpointNumber  uint64         `json:"checkpoint_number"`
		}
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return applyResult{Code: types.Malformed}
		}
		code, advanced := s.applyCheckpointStable(d.Server, d.ConfigVersion, d.CheckpointNumber)
		if advanced {
			f.cond.broadcastCheckpointStable(d.CheckpointNumber)
		}
		return applyResult{Code: code}

	case opAlarm:
		code := s.applyAlarm()
		f.cond.broadcastCheckpoint(s.checkpoint)
		return applyResult{Code: code}

	case opCheckpoint:
		code := s.applyCheckpoint()
		f.cond.broadcastCheckpoint(s.checkpoint)
		return applyResult{Code: code}

	case opDebugDump:
		return applyResult{Code: types.Success, Text: s.applyDebugDump()}

	default:
		return applyResult{Code: types.Malformed}
	}
}

// snapshot is the whole coordinator state, JSON-encoded in one shot.
// Grounded on pkg/manager/fsm.go's WarrenSnapshot: the FSM builds this
// struct inside Snapshot and writes it out through raft.SnapshotSink in
// Persist.
type snapshot struct {
	Cluster          uint64                            `json:"cluster"`
	Version          uint64                            `json:"version"`
	Flags            types.ConfigFlags                 `json:"flags"`
	NextID           uint64                             `json:"next_id"`
	Servers          []*types.Server                   `json:"servers"`
	Permutation      []types.ServerID                  `json:"permutation"`
	Spares           []types.ServerID                  `json:"spares"`
	Spaces           []*types.Space                    `json:"spaces"`
	Intents          map[types.RegionID]*types.RegionIntent `json:"intents"`
	Transfers        map[types.TransferID]*types.Transfer   `json:"transfers"`
	Offline          map[types.RegionID]offlineRecord  `json:"offline"`
	Checkpoint       uint64                            `json:"checkpoint"`
	StableCheckpoint uint64                            `json:"stable_checkpoint"`
	ConfigAck        map[types.ServerID]uint64         `json:"config_ack"`
	ConfigStable     map[types.ServerID]uint64         `json:"config_stable"`
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.state.mu.RLock()
	defer f.state.mu.RUnlock()

	s := f.state
	snap := &snapshot{
		Cluster:          s.cluster,
		Version:          s.version,
		Flags:            s.flags,
		NextID:           s.nextID,
		Permutation:      append([]types.ServerID(nil), s.permutation...),
		Spares:           append([]types.ServerID(nil), s.spares...),
		Intents:          s.intents,
		Transfers:        s.transfers,
		Offline:          s.offline,
		Checkpoint:       s.checkpoint,
		StableCheckpoint: s.stableCheckpoint,
		ConfigAck:        s.configAck,
		ConfigStable:     s.configStable,
	}
	for _, srv := range s.servers {
		snap.Servers = append(snap.Servers, srv)
	}
	for _, sp := range s.spaces {
		snap.Spaces = append(snap.Spaces, sp)
	}
	return snap, nil
}

func (snap *snapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(snap)
	if err != nil {
		sink.Cancel()
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (snap *snapshot) Release() {}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("coordinator: restore snapshot: %w", err)
	}

	s := newState()
	s.cluster = snap.Cluster
	s.version = snap.Version
	s.flags = snap.Flags
	s.nextID = snap.NextID
	s.permutation = snap.Permutation
	s.spares = snap.Spares
	s.checkpoint = snap.Checkpoint
	s.stableCheckpoint = snap.StableCheckpoint
	if snap.Intents != nil {
		s.intents = snap.Intents
	}
	if snap.Transfers != nil {
		s.transfers = snap.Transfers
	}
	if snap.Offline != nil {
		s.offline = snap.Offline
	}
	if snap.ConfigAck != nil {
		s.configAck = snap.ConfigAck
	}
	if snap.ConfigStable != nil {
		s.configStable = snap.ConfigStable
	}
	for _, srv := range snap.Servers {
		s.servers[srv.ID] = srv
		if srv.BindTo != "" {
			s.bindToIndex[srv.BindTo] = srv.ID
		}
	}
	for _, sp := range snap.Spaces {
		s.spaces[sp.ID] = sp
		s.spacesByName[sp.Name] = sp.ID
	}
	s.refreshCachedConfig()

	f.state = s
	return nil
}
