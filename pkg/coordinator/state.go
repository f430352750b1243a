package coordinator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/hyperfold/pkg/hyperspace"
	"github.com/cuemby/hyperfold/pkg/types"
)

// offlineRecord remembers the (server, virtual) pair a region's last
// replica occupied when the chain was emptied because that server shut
// down cleanly — if the server comes back AVAILABLE, convergence puts it
// back as the region's replica under a freshly allocated virtual id, per
// the data model's convergence rule step 4.
type offlineRecord struct {
	Server  types.ServerID
	Virtual types.VirtualServerID
}

// state is the coordinator's entire replicated decision surface: every
// field here must be reproducible byte-for-byte from command replay alone
// (no wall-clock reads, no unseeded randomness), matching the state
// machine's determinism requirement.
type state struct {
	mu sync.RWMutex

	cluster uint64
	version uint64
	flags   types.ConfigFlags

	nextID uint64 // single monotonic factory backing every identifier kind

	servers     map[types.ServerID]*types.Server
	bindToIndex map[string]types.ServerID
	permutation []types.ServerID // AVAILABLE servers, placement order
	spares      []types.ServerID
	spareQuota  int

	spaces       map[types.SpaceID]*types.Space
	spacesByName map[string]types.SpaceID

	intents   map[types.RegionID]*types.RegionIntent
	transfers map[types.TransferID]*types.Transfer
	offline   map[types.RegionID]offlineRecord

	checkpoint       uint64
	stableCheckpoint uint64
	gcWatermark      uint64

	configAck    map[types.ServerID]uint64
	configStable map[types.ServerID]uint64

	ackBarrier    *barrier // config_ack_barrier: per-version membership awaiting config_ack
	stableBarrier *barrier // config_stable_barrier: per-version membership awaiting config_stable
	checkpBarrier *barrier // per-checkpoint-number membership awaiting checkpoint_stable

	cachedConfig *types.Configuration
}

func newState() *state {
	return &state{
		servers:       make(map[types.ServerID]*types.Server),
		bindToIndex:   make(map[string]types.ServerID),
		spaces:        make(map[types.SpaceID]*types.Space),
		spacesByName:  make(map[string]types.SpaceID),
		intents:       make(map[types.RegionID]*types.RegionIntent),
		transfers:     make(map[types.TransferID]*types.Transfer),
		offline:       make(map[types.RegionID]offlineRecord),
		configAck:     make(map[types.ServerID]uint64),
		configStable:  make(map[types.ServerID]uint64),
		ackBarrier:    newBarrier(),
		stableBarrier: newBarrier(),
		checkpBarrier: newBarrier(),
		spareQuota:    4,
	}
}

func (s *state) allocID() uint64 {
	s.nextID++
	return s.nextID
}

// bumpVersion advances the configuration version, refreshes the cached
// snapshot, and opens the new version's ack/stable barriers over the
// membership that must report in for it. Callers must hold s.mu.
func (s *state) bumpVersion() {
	s.version++
	s.refreshCachedConfig()
	members := s.currentMembers()
	s.ackBarrier.open(s.version, members)
	s.stableBarrier.open(s.version, members)
}

func (s *state) refreshCachedConfig() {
	cfg := &types.Configuration{
		Cluster: s.cluster,
		Version: s.version,
		Flags:   s.flags,
	}
	for _, srv := range s.servers {
		cfg.Servers = append(cfg.Servers, *srv)
	}
	sort.Slice(cfg.Servers, func(i, j int) bool { return cfg.Servers[i].ID < cfg.Servers[j].ID })

	spaceIDs := make([]types.SpaceID, 0, len(s.spaces))
	for id := range s.spaces {
		spaceIDs = append(spaceIDs, id)
	}
	sort.Slice(spaceIDs, func(i, j int) bool { return spaceIDs[i] < spaceIDs[j] })
	for _, id := range spaceIDs {
		cfg.Spaces = append(cfg.Spaces, s.spaces[id])
	}

	transferIDs := make([]types.TransferID, 0, len(s.transfers))
	for id := range s.transfers {
		transferIDs = append(transferIDs, id)
	}
	sort.Slice(transferIDs, func(i, j int) bool { return transferIDs[i] < transferIDs[j] })
	for _, id := range transferIDs {
		cfg.Transfers = append(cfg.Transfers, s.transfers[id])
	}

	s.cachedConfig = cfg
}

// configuration returns the current cached snapshot. Safe for concurrent
// callers; never mutated in place once published.
func (s *state) configuration() *types.Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cachedConfig
}

// checkpointNumber returns the latest checkpoint number, for callers
// outside this process (storaged's HTTP poll) that need it alongside the
// configuration snapshot.
func (s *state) checkpointNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint
}

// --- server lifecycle -------------------------------------------------

func (s *state) applyInit(clusterToken uint64) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cluster != 0 {
		return types.Success // idempotent: cluster id never overwritten
	}
	s.cluster = clusterToken
	s.bumpVersion()
	return types.Success
}

func (s *state) applyReadOnly(readOnly bool) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flags.ReadOnly == readOnly {
		return types.Success
	}
	s.flags.ReadOnly = readOnly
	s.bumpVersion()
	return types.Success
}

func (s *state) applyServerRegister(id types.ServerID, bindTo string) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == 0 {
		return types.Malformed
	}
	if _, exists := s.servers[id]; exists {
		return types.Duplicate
	}
	s.servers[id] = &types.Server{ID: id, BindTo: bindTo, State: types.ServerAssigned}
	s.bumpVersion()
	return types.Success
}

func (s *state) applyServerOnline(id types.ServerID, bindTo string) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok {
		return types.NotFound
	}
	if srv.State == types.ServerKilled {
		return types.NoCanDo
	}
	if bindTo != "" && bindTo != srv.BindTo {
		if owner, taken := s.bindToIndex[bindTo]; taken && owner != id {
			return types.Duplicate
		}
		delete(s.bindToIndex, srv.BindTo)
		srv.BindTo = bindTo
		s.bindToIndex[bindTo] = id
	}
	srv.State = types.ServerAvailable
	s.addToPlacementPool(id)
	s.rebalance()
	s.bumpVersion()
	return types.Success
}

func (s *state) addToPlacementPool(id types.ServerID) {
	for _, existing := range s.permutation {
		if existing == id {
			return
		}
	}
	for _, existing := range s.spares {
		if existing == id {
			return
		}
	}
	if len(s.spares) < s.spareQuota {
		s.spares = append(s.spares, id)
		return
	}
	s.permutation = append(s.permutation, id)
}

func (s *state) removeFromPlacementPool(id types.ServerID) {
	s.permutation = removeServerID(s.permutation, id)
	s.spares = removeServerID(s.spares, id)
}

func removeServerID(list []types.ServerID, id types.ServerID) []types.ServerID {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (s *state) transitionOffline(id types.ServerID, target types.ServerState) types.ReturnCode {
	srv, ok := s.servers[id]
	if !ok {
		return types.NotFound
	}
	if srv.State == types.ServerKilled {
		return types.NoCanDo
	}
	srv.State = target
	s.removeFromPlacementPool(id)
	s.rebalance()
	s.bumpVersion()
	return types.Success
}

func (s *state) applyServerOffline(id types.ServerID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionOffline(id, types.ServerNotAvailable)
}

func (s *state) applyServerShutdown(id types.ServerID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionOffline(id, types.ServerShutdown)
}

func (s *state) applyServerSuspect(id types.ServerID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionOffline(id, types.ServerNotAvailable)
}

func (s *state) applyServerKill(id types.ServerID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok {
		return types.NotFound
	}
	srv.State = types.ServerKilled
	s.removeFromPlacementPool(id)
	s.rebalance()
	s.bumpVersion()
	return types.Success
}

func (s *state) applyServerForget(id types.ServerID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok {
		return types.NotFound
	}
	delete(s.bindToIndex, srv.BindTo)
	delete(s.servers, id)
	s.removeFromPlacementPool(id)
	s.rebalance()
	s.bumpVersion()
	return types.Success
}

// --- spaces -------------------------------------------------------------

func (s *state) applySpaceAdd(sp *types.Space) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sp == nil || !types.ValidIdentifier(sp.Name) {
		return types.Malformed
	}
	if err := sp.Validate(); err != nil {
		return types.Malformed
	}
	if _, exists := s.spacesByName[sp.Name]; exists {
		return types.Duplicate
	}
	if sp.FaultTolerance < 1 {
		return types.Malformed
	}

	sp.ID = types.SpaceID(s.allocID())
	if len(sp.Subspaces) == 0 {
		sp.Subspaces = []*types.Subspace{{Attrs: nil}}
	}
	for _, sub := range sp.Subspaces {
		sub.ID = types.SubspaceID(s.allocID())
		if len(sub.Regions) == 0 {
			lower, upper := hyperspace.FullDomain(len(sub.Attrs))
			sub.Regions = []*types.Region{{
				ID:         types.RegionID(s.allocID()),
				LowerCoord: lower,
				UpperCoord: upper,
			}}
		}
		for _, region := range sub.Regions {
			s.intents[region.ID] = &types.RegionIntent{RegionID: region.ID, Checkpoint: s.checkpoint}
		}
	}
	for i := range sp.Indices {
		sp.Indices[i].ID = types.IndexID(s.allocID())
	}

	s.spaces[sp.ID] = sp
	s.spacesByName[sp.Name] = sp.ID
	s.rebalance()
	s.bumpVersion()
	return types.Success
}

func (s *state) applySpaceRm(name string) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.spacesByName[name]
	if !ok {
		return types.NotFound
	}
	sp := s.spaces[id]
	for _, sub := range sp.Subspaces {
		for _, region := range sub.Regions {
			delete(s.intents, region.ID)
			delete(s.offline, region.ID)
		}
	}
	for tid, tr := range s.transfers {
		for _, sub := range sp.Subspaces {
			for _, region := range sub.Regions {
				if tr.RegionID == region.ID {
					delete(s.transfers, tid)
				}
			}
		}
	}
	delete(s.spaces, id)
	delete(s.spacesByName, name)
	s.bumpVersion()
	return types.Success
}

func (s *state) applySpaceMv(oldName, newName string) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.spacesByName[oldName]
	if !ok {
		return types.NotFound
	}
	if !types.ValidIdentifier(newName) {
		return types.Malformed
	}
	if _, taken := s.spacesByName[newName]; taken {
		return types.Duplicate
	}
	s.spaces[id].Name = newName
	delete(s.spacesByName, oldName)
	s.spacesByName[newName] = id
	s.bumpVersion()
	return types.Success
}

func (s *state) applyIndexAdd(spaceName string, attr int) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.spacesByName[spaceName]
	if !ok {
		return types.NotFound
	}
	sp := s.spaces[id]
	if attr < 0 || attr >= len(sp.Schema.Attributes) {
		return types.Malformed
	}
	for _, idx := range sp.Indices {
		if idx.Attr == attr {
			return types.Duplicate
		}
	}
	sp.Indices = append(sp.Indices, types.Index{ID: types.IndexID(s.allocID()), Attr: attr})
	s.bumpVersion()
	return types.Success
}

func (s *state) applyIndexRm(spaceName string, indexID types.IndexID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.spacesByName[spaceName]
	if !ok {
		return types.NotFound
	}
	sp := s.spaces[id]
	for i, idx := range sp.Indices {
		if idx.ID == indexID {
			sp.Indices = append(sp.Indices[:i], sp.Indices[i+1:]...)
			s.bumpVersion()
			return types.Success
		}
	}
	return types.NotFound
}

func (s *state) applyFaultTolerance(spaceName string, r int) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.spacesByName[spaceName]
	if !ok {
		return types.NotFound
	}
	if r < 1 {
		return types.Malformed
	}
	sp := s.spaces[id]
	sp.FaultTolerance = r
	s.recomputeIntents(sp)
	s.rebalance()
	s.bumpVersion()
	return types.Success
}

// recomputeIntents rewrites every already-placed region's desired replica
// set for sp's current width, so a fault_tolerance change that grows or
// shrinks R has somewhere for convergeSubspace to converge toward. Unlike
// the unassigned-region path in rebalance, this never touches sp's actual
// Replicas — only the intent those replicas converge against.
func (s *state) recomputeIntents(sp *types.Space) {
	width := sp.FaultTolerance + 1
	for _, sub := range sp.Subspaces {
		if len(sub.Regions) == 0 {
			continue
		}
		chains := computeReplicaSets(s.permutation, len(sub.Regions), width, width*sp.PredecessorWidth)
		for i, region := range sub.Regions {
			if i >= len(chains) || chains[i] == nil {
				continue
			}
			intent, ok := s.intents[region.ID]
			if !ok {
				intent = &types.RegionIntent{RegionID: region.ID, Checkpoint: s.checkpoint}
				s.intents[region.ID] = intent
			}
			desired := make([]types.Replica, 0, len(chains[i]))
			for _, srv := range chains[i] {
				desired = append(desired, types.Replica{Server: srv, Virtual: types.VirtualServerID(s.allocID())})
			}
			intent.DesiredReplicas = desired
		}
	}
}

// --- transfers ------------------------------------------------------

func (s *state) findRegion(id types.RegionID) (*types.Region, *types.Space) {
	for _, sp := range s.spaces {
		for _, sub := range sp.Subspaces {
			for _, r := range sub.Regions {
				if r.ID == id {
					return r, sp
				}
			}
		}
	}
	return nil, nil
}

func (s *state) applyTransferGoLive(version uint64, transferID types.TransferID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.transfers[transferID]
	if !ok {
		return types.NotFound
	}
	region, _ := s.findRegion(tr.RegionID)
	if region == nil {
		return types.NotFound
	}
	if last, ok := region.Tail(); ok && last.Server == tr.DstServer && last.Virtual == tr.DstVirtual {
		return types.Success // already live, no-op
	}
	region.Replicas = append(region.Replicas, types.Replica{Server: tr.DstServer, Virtual: tr.DstVirtual})
	s.bumpVersion()
	return types.Success
}

func (s *state) applyTransferComplete(version uint64, transferID types.TransferID) types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.transfers[transferID]
	if !ok {
		return types.NotFound
	}
	region, _ := s.findRegion(tr.RegionID)
	if region == nil {
		return types.NotFound
	}
	if len(region.Replicas) < 2 {
		return types.NoCanDo
	}
	last := region.Replicas[len(region.Replicas)-1]
	secondLast := region.Replicas[len(region.Replicas)-2]
	if secondLast.Server != tr.SrcServer || secondLast.Virtual != tr.SrcVirtual ||
		last.Server != tr.DstServer || last.Virtual != tr.DstVirtual {
		return types.NoCanDo
	}
	region.Replicas = append(region.Replicas[:len(region.Replicas)-2], last)
	delete(s.transfers, transferID)
	s.rebalance()
	s.bumpVersion()
	return types.Success
}

// --- barriers / checkpoints -----------------------------------------

func (s *state) currentMembers() []types.ServerID {
	ids := make([]types.ServerID, 0, len(s.servers))
	for id, srv := range s.servers {
		if srv.State == types.ServerAvailable {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// applyConfigAck records server's acknowledgment of version and passes it
// through the config_ack_barrier. advanced reports whether this call moved
// the barrier's minimum-uncompleted version forward, the signal the caller
// broadcasts on the ack condition variable.
func (s *state) applyConfigAck(server types.ServerID, version uint64) (code types.ReturnCode, advanced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[server]; !ok {
		return types.NotFound, false
	}
	if prev, ok := s.configAck[server]; !ok || version > prev {
		s.configAck[server] = version
	}
	return types.Success, s.ackBarrier.pass(version, server)
}

// applyConfigStable is applyConfigAck's counterpart over the
// config_stable_barrier.
func (s *state) applyConfigStable(server types.ServerID, version uint64) (code types.ReturnCode, advanced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[server]; !ok {
		return types.NotFound, false
	}
	if prev, ok := s.configStable[server]; !ok || version > prev {
		s.configStable[server] = version
	}
	return types.Success, s.stableBarrier.pass(version, server)
}

// applyCheckpointStable is the same pattern keyed by checkpoint number
// instead of configuration version, passed through the barrier checkpoint()
// opened for checkpointNumber.
func (s *state) applyCheckpointStable(server types.ServerID, configVersion, checkpointNumber uint64) (code types.ReturnCode, advanced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if configVersion < s.version {
		return types.Success, false // stale report, ignored per spec
	}
	if _, ok := s.servers[server]; !ok {
		return types.NotFound, false
	}
	if checkpointNumber > s.stableCheckpoint {
		s.stableCheckpoint = checkpointNumber
	}
	return types.Success, s.checkpBarrier.pass(checkpointNumber, server)
}

// applyCheckpoint increments the checkpoint number and opens a new barrier
// over the current configuration's membership for checkpoint_stable reports
// against it.
func (s *state) applyCheckpoint() types.ReturnCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint++
	s.checkpBarrier.open(s.checkpoint, s.currentMembers())
	return types.Success
}

func (s *state) applyAlarm() types.ReturnCode {
	return s.applyCheckpoint()
}

func (s *state) applyDebugDump() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("cluster=%d version=%d servers=%d spaces=%d transfers=%d checkpoint=%d stable=%d",
		s.cluster, s.version, len(s.servers), len(s.spaces), len(s.transfers), s.checkpoint, s.stableCheckpoint)
}

// --- rebalance / placement -------------------------------------------

// rebalance recomputes replica sets for every region that has none yet and
// advances convergence by at most one transfer per region per pass,
// following the convergence rule: skip regions with a live transfer,
// prune non-AVAILABLE replicas, restore an offline pair once its server
// returns, and start exactly one transfer toward a missing intent replica.
// Callers must hold s.mu.
func (s *state) rebalance() {
	for _, sp := range s.spaces {
		width := sp.FaultTolerance + 1
		for _, sub := range sp.Subspaces {
			unassigned := 0
			for _, r := range sub.Regions {
				if len(r.Replicas) == 0 {
					unassigned++
				}
			}
			if unassigned == 0 {
				s.convergeSubspace(sub)
				continue
			}
			chains := computeReplicaSets(s.permutation, unassigned, width, width*sp.PredecessorWidth)
			ci := 0
			for _, r := range sub.Regions {
				if len(r.Replicas) != 0 {
					continue
				}
				if ci >= len(chains) || chains[ci] == nil {
					ci++
					continue
				}
				r.Replicas = make([]types.Replica, 0, len(chains[ci]))
				for _, srv := range chains[ci] {
					r.Replicas = append(r.Replicas, types.Replica{Server: srv, Virtual: types.VirtualServerID(s.allocID())})
				}
				if intent, ok := s.intents[r.ID]; ok {
					intent.DesiredReplicas = append([]types.Replica(nil), r.Replicas...)
				}
				ci++
			}
		}
	}
}

func (s *state) hasLiveTransfer(regionID types.RegionID) bool {
	for _, tr := range s.transfers {
		if tr.RegionID == regionID {
			return true
		}
	}
	return false
}

// convergeSubspace drives each already-placed region one step toward its
// intent: prune dead replicas, restore a clean-shutdown pair if its server
// is back, and start one transfer toward the next missing intent replica.
func (s *state) convergeSubspace(sub *types.Subspace) {
	for _, r := range sub.Regions {
		intent, ok := s.intents[r.ID]
		if !ok || s.hasLiveTransfer(r.ID) {
			continue
		}

		kept := r.Replicas[:0]
		var removedShutdown *types.Replica
		for i := range r.Replicas {
			rep := r.Replicas[i]
			srv, exists := s.servers[rep.Server]
			if exists && srv.State == types.ServerAvailable {
				kept = append(kept, rep)
				continue
			}
			if exists && srv.State == types.ServerShutdown {
				removedShutdown = &rep
			}
		}
		r.Replicas = kept

		if len(intent.DesiredReplicas) > 0 && len(r.Replicas) > len(intent.DesiredReplicas) {
			// Step 3: a shrunk fault_tolerance leaves more live replicas than
			// the intent now wants; drop the tail-most down to the new width.
			r.Replicas = r.Replicas[:len(intent.DesiredReplicas)]
		}

		if len(r.Replicas) == 0 && removedShutdown != nil {
			s.offline[r.ID] = offlineRecord{Server: removedShutdown.Server, Virtual: removedShutdown.Virtual}
		}

		if len(r.Replicas) == 0 {
			if rec, ok := s.offline[r.ID]; ok {
				if srv, exists := s.servers[rec.Server]; exists && srv.State == types.ServerAvailable {
					r.Replicas = []types.Replica{{Server: rec.Server, Virtual: types.VirtualServerID(s.allocID())}}
					delete(s.offline, r.ID)
				}
			}
			continue
		}

		s.startNextTransfer(r, intent)
	}
}

// startNextTransfer begins at most one transfer for the region: toward a
// desired replica missing from the current chain, from the current tail.
func (s *state) startNextTransfer(r *types.Region, intent *types.RegionIntent) {
	tail, ok := r.Tail()
	if !ok {
		return
	}
	for _, desired := range intent.DesiredReplicas {
		if r.HasServer(desired.Server) {
			continue
		}
		tid := types.TransferID(s.allocID())
		s.transfers[tid] = &types.Transfer{
			ID:         tid,
			RegionID:   r.ID,
			SrcServer:  tail.Server,
			SrcVirtual: tail.Virtual,
			DstServer:  desired.Server,
			DstVirtual: types.VirtualServerID(s.allocID()),
		}
		return
	}
}
