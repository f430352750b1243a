package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/types"
)

func testSpace(name string, r, p int) *types.Space {
	return &types.Space{
		Name:             name,
		FaultTolerance:   r,
		PredecessorWidth: p,
		Schema: types.Schema{
			Attributes: []types.Attribute{{Name: "key", Type: "string"}},
		},
	}
}

func onlineServers(t *testing.T, s *state, n int) {
	t.Helper()
	s.spareQuota = 0 // every onlined server lands in the placement permutation
	for i := 1; i <= n; i++ {
		id := types.ServerID(i)
		require.Equal(t, types.Success, s.applyServerRegister(id, ""))
		require.Equal(t, types.Success, s.applyServerOnline(id, "host"))
	}
}

func TestApplyInitIsIdempotent(t *testing.T) {
	s := newState()
	require.Equal(t, types.Success, s.applyInit(42))
	require.Equal(t, types.Success, s.applyInit(99))
	assert.Equal(t, uint64(42), s.cluster)
}

func TestApplyReadOnlyOnlyBumpsVersionOnChange(t *testing.T) {
	s := newState()
	s.applyInit(1)
	before := s.version

	require.Equal(t, types.Success, s.applyReadOnly(true))
	assert.Greater(t, s.version, before)

	afterFirst := s.version
	require.Equal(t, types.Success, s.applyReadOnly(true))
	assert.Equal(t, afterFirst, s.version)
}

func TestApplyServerRegisterRejectsDuplicateAndZeroID(t *testing.T) {
	s := newState()
	assert.Equal(t, types.Malformed, s.applyServerRegister(0, "host"))
	require.Equal(t, types.Success, s.applyServerRegister(1, "host"))
	assert.Equal(t, types.Duplicate, s.applyServerRegister(1, "host"))
}

func TestApplyServerOnlineRequiresRegistration(t *testing.T) {
	s := newState()
	assert.Equal(t, types.NotFound, s.applyServerOnline(1, "host"))
}

func TestApplyServerOnlineRejectsKilledServer(t *testing.T) {
	s := newState()
	s.applyServerRegister(1, "host")
	s.applyServerKill(1)
	assert.Equal(t, types.NoCanDo, s.applyServerOnline(1, "host"))
}

func TestApplyServerOnlineDetectsDuplicateBindTo(t *testing.T) {
	s := newState()
	s.applyServerRegister(1, "")
	s.applyServerRegister(2, "")
	require.Equal(t, types.Success, s.applyServerOnline(1, "host-a"))
	assert.Equal(t, types.Duplicate, s.applyServerOnline(2, "host-a"))
}

func TestServerOnlineAddsToSparesBeforePermutation(t *testing.T) {
	s := newState()
	s.spareQuota = 1
	s.applyServerRegister(1, "")
	s.applyServerOnline(1, "h1")
	assert.Contains(t, s.spares, types.ServerID(1))
	assert.NotContains(t, s.permutation, types.ServerID(1))

	s.applyServerRegister(2, "")
	s.applyServerOnline(2, "h2")
	assert.Contains(t, s.permutation, types.ServerID(2))
}

func TestApplyServerOfflineRemovesFromPlacementPool(t *testing.T) {
	s := newState()
	s.spareQuota = 0
	s.applyServerRegister(1, "")
	s.applyServerOnline(1, "h1")
	require.Contains(t, s.permutation, types.ServerID(1))

	require.Equal(t, types.Success, s.applyServerOffline(1))
	assert.NotContains(t, s.permutation, types.ServerID(1))
	assert.Equal(t, types.ServerNotAvailable, s.servers[1].State)
}

func TestApplyServerKillThenOfflineIsNoCanDo(t *testing.T) {
	s := newState()
	s.applyServerRegister(1, "")
	s.applyServerKill(1)
	assert.Equal(t, types.NoCanDo, s.applyServerOffline(1))
}

func TestApplyServerForgetRemovesServerEntirely(t *testing.T) {
	s := newState()
	s.applyServerRegister(1, "bound")
	require.Equal(t, types.Success, s.applyServerForget(1))
	_, exists := s.servers[1]
	assert.False(t, exists)
	_, boundExists := s.bindToIndex["bound"]
	assert.False(t, boundExists)
}

func TestApplyServerForgetUnknownIsNotFound(t *testing.T) {
	s := newState()
	assert.Equal(t, types.NotFound, s.applyServerForget(1))
}

func TestApplySpaceAddSeedsImplicitSubspaceAndRegion(t *testing.T) {
	s := newState()
	sp := testSpace("kv", 1, 3)

	require.Equal(t, types.Success, s.applySpaceAdd(sp))
	require.Len(t, sp.Subspaces, 1)
	require.Len(t, sp.Subspaces[0].Regions, 1)

	region := sp.Subspaces[0].Regions[0]
	_, ok := s.intents[region.ID]
	assert.True(t, ok)
}

func TestApplySpaceAddRejectsDuplicateName(t *testing.T) {
	s := newState()
	s.applySpaceAdd(testSpace("kv", 1, 3))
	assert.Equal(t, types.Duplicate, s.applySpaceAdd(testSpace("kv", 1, 3)))
}

func TestApplySpaceAddRejectsInvalidFaultTolerance(t *testing.T) {
	s := newState()
	assert.Equal(t, types.Malformed, s.applySpaceAdd(testSpace("kv", 0, 3)))
}

func TestApplySpaceAddPlacesReplicasOnceServersAvailable(t *testing.T) {
	s := newState()
	onlineServers(t, s, 6)
	sp := testSpace("kv", 2, 2)

	require.Equal(t, types.Success, s.applySpaceAdd(sp))
	region := sp.Subspaces[0].Regions[0]
	assert.Len(t, region.Replicas, 3) // R = FaultTolerance + 1
}

func TestApplySpaceRmClearsIntentsAndTransfers(t *testing.T) {
	s := newState()
	onlineServers(t, s, 6)
	sp := testSpace("kv", 2, 2)
	s.applySpaceAdd(sp)
	region := sp.Subspaces[0].Regions[0]

	require.Equal(t, types.Success, s.applySpaceRm("kv"))
	_, exists := s.intents[region.ID]
	assert.False(t, exists)
	_, spaceExists := s.spacesByName["kv"]
	assert.False(t, spaceExists)
}

func TestApplySpaceMvRenamesSpace(t *testing.T) {
	s := newState()
	s.applySpaceAdd(testSpace("kv", 1, 3))

	require.Equal(t, types.Success, s.applySpaceMv("kv", "kv2"))
	_, oldExists := s.spacesByName["kv"]
	assert.False(t, oldExists)
	assert.Contains(t, s.spacesByName, "kv2")
}

func TestApplySpaceMvRejectsTakenName(t *testing.T) {
	s := newState()
	s.applySpaceAdd(testSpace("a", 1, 3))
	s.applySpaceAdd(testSpace("b", 1, 3))
	assert.Equal(t, types.Duplicate, s.applySpaceMv("a", "b"))
}

func TestApplyIndexAddAndRm(t *testing.T) {
	s := newState()
	sp := testSpace("kv", 1, 3)
	sp.Schema.Attributes = append(sp.Schema.Attributes, types.Attribute{Name: "tag", Type: "string"})
	s.applySpaceAdd(sp)

	require.Equal(t, types.Success, s.applyIndexAdd("kv", 1))
	assert.Equal(t, types.Duplicate, s.applyIndexAdd("kv", 1))

	id := s.spaces[s.spacesByName["kv"]].Indices[0].ID
	require.Equal(t, types.Success, s.applyIndexRm("kv", id))
	assert.Equal(t, types.NotFound, s.applyIndexRm("kv", id))
}

func TestApplyIndexAddRejectsOutOfRangeAttr(t *testing.T) {
	s := newState()
	s.applySpaceAdd(testSpace("kv", 1, 3))
	assert.Equal(t, types.Malformed, s.applyIndexAdd("kv", 5))
}

func TestApplyFaultToleranceGrowsChainViaOneTransfer(t *testing.T) {
	s := newState()
	onlineServers(t, s, 6)
	sp := testSpace("kv", 1, 2)
	require.Equal(t, types.Success, s.applySpaceAdd(sp))
	region := sp.Subspaces[0].Regions[0]
	require.Len(t, region.Replicas, 2) // R = 1 -> width 2

	require.Equal(t, types.Success, s.applyFaultTolerance("kv", 2))
	assert.Len(t, s.intents[region.ID].DesiredReplicas, 3, "intent should widen to R+1 = 3")
	assert.Len(t, region.Replicas, 2, "region grows one replica per convergence pass")
	require.Len(t, s.transfers, 1)

	var tr *types.Transfer
	for _, pending := range s.transfers {
		tr = pending
	}
	assert.Equal(t, region.ID, tr.RegionID)
}

func TestApplyFaultToleranceShrinkTrimsExcessReplicas(t *testing.T) {
	s := newState()
	onlineServers(t, s, 6)
	sp := testSpace("kv", 2, 2)
	require.Equal(t, types.Success, s.applySpaceAdd(sp))
	region := sp.Subspaces[0].Regions[0]
	require.Len(t, region.Replicas, 3) // R = 2 -> width 3

	require.Equal(t, types.Success, s.applyFaultTolerance("kv", 1))
	assert.Len(t, s.intents[region.ID].DesiredReplicas, 2, "intent should narrow to R+1 = 2")
	assert.Len(t, region.Replicas, 2, "excess replica beyond the new width is trimmed")
}

func TestApplyFaultToleranceUnknownSpaceIsNotFound(t *testing.T) {
	s := newState()
	assert.Equal(t, types.NotFound, s.applyFaultTolerance("missing", 2))
}

func TestConvergeSubspacePrunesDeadReplicasAndStartsTransfer(t *testing.T) {
	s := newState()
	onlineServers(t, s, 6)
	sp := testSpace("kv", 2, 2)
	s.applySpaceAdd(sp)
	region := sp.Subspaces[0].Regions[0]
	require.Len(t, region.Replicas, 3)

	killed := region.Replicas[1].Server
	s.applyServerKill(killed)

	assert.Len(t, region.Replicas, 2)
	assert.NotEmpty(t, s.transfers)

	var tr *types.Transfer
	for _, t2 := range s.transfers {
		tr = t2
	}
	require.NotNil(t, tr)
	assert.Equal(t, region.ID, tr.RegionID)
}

func TestConvergeSubspaceRestoresOfflinePairAfterShutdown(t *testing.T) {
	s := newState()
	s.servers[2] = &types.Server{ID: 2, State: types.ServerShutdown}

	region := &types.Region{ID: 1, Replicas: []types.Replica{{Server: 2, Virtual: 5}}}
	intent := &types.RegionIntent{RegionID: 1, DesiredReplicas: []types.Replica{{Server: 2, Virtual: 5}}}
	s.intents[1] = intent
	sub := &types.Subspace{Regions: []*types.Region{region}}

	s.convergeSubspace(sub)
	assert.Empty(t, region.Replicas)
	rec, ok := s.offline[region.ID]
	require.True(t, ok)
	assert.Equal(t, types.ServerID(2), rec.Server)

	s.servers[2].State = types.ServerAvailable
	s.convergeSubspace(sub)
	require.Len(t, region.Replicas, 1)
	assert.Equal(t, types.ServerID(2), region.Replicas[0].Server)
	_, stillOffline := s.offline[region.ID]
	assert.False(t, stillOffline)
}

func TestApplyTransferGoLiveAppendsDestinationToChain(t *testing.T) {
	s := newState()
	onlineServers(t, s, 2)
	region := &types.Region{ID: 1, Replicas: []types.Replica{{Server: 1, Virtual: 1}}}
	s.spaces[1] = &types.Space{ID: 1, Name: "kv", Subspaces: []*types.Subspace{{Regions: []*types.Region{region}}}}
	s.spacesByName["kv"] = 1

	tid := types.TransferID(1)
	s.transfers[tid] = &types.Transfer{ID: tid, RegionID: 1, SrcServer: 1, SrcVirtual: 1, DstServer: 2, DstVirtual: 2}

	require.Equal(t, types.Success, s.applyTransferGoLive(s.version, tid))
	require.Len(t, region.Replicas, 2)
	tail, _ := region.Tail()
	assert.Equal(t, types.ServerID(2), tail.Server)
}

func TestApplyTransferCompleteDropsSourceFromChain(t *testing.T) {
	s := newState()
	region := &types.Region{ID: 1, Replicas: []types.Replica{{Server: 1, Virtual: 1}, {Server: 2, Virtual: 2}}}
	s.spaces[1] = &types.Space{ID: 1, Name: "kv", Subspaces: []*types.Subspace{{Regions: []*types.Region{region}}}}
	s.spacesByName["kv"] = 1

	tid := types.TransferID(1)
	s.transfers[tid] = &types.Transfer{ID: tid, RegionID: 1, SrcServer: 1, SrcVirtual: 1, DstServer: 2, DstVirtual: 2}

	require.Equal(t, types.Success, s.applyTransferComplete(s.version, tid))
	require.Len(t, region.Replicas, 1)
	assert.Equal(t, types.ServerID(2), region.Replicas[0].Server)
	_, exists := s.transfers[tid]
	assert.False(t, exists)
}

func TestApplyTransferCompleteRejectsMismatchedChain(t *testing.T) {
	s := newState()
	region := &types.Region{ID: 1, Replicas: []types.Replica{{Server: 1, Virtual: 1}, {Server: 2, Virtual: 2}}}
	s.spaces[1] = &types.Space{ID: 1, Name: "kv", Subspaces: []*types.Subspace{{Regions: []*types.Region{region}}}}
	s.spacesByName["kv"] = 1

	tid := types.TransferID(1)
	s.transfers[tid] = &types.Transfer{ID: tid, RegionID: 1, SrcServer: 9, SrcVirtual: 9, DstServer: 2, DstVirtual: 2}
	assert.Equal(t, types.NoCanDo, s.applyTransferComplete(s.version, tid))
}

func TestApplyConfigAckAndStableTrackLatestVersion(t *testing.T) {
	s := newState()
	s.applyServerRegister(1, "")

	code, _ := s.applyConfigAck(1, 5)
	require.Equal(t, types.Success, code)
	code, _ = s.applyConfigAck(1, 3)
	require.Equal(t, types.Success, code)
	assert.Equal(t, uint64(5), s.configAck[1])

	code, _ = s.applyConfigStable(1, 4)
	require.Equal(t, types.Success, code)
	assert.Equal(t, uint64(4), s.configStable[1])
}

func TestApplyConfigAckAdvancesBarrierWhenAllMembersReport(t *testing.T) {
	s := newState()
	s.servers[1] = &types.Server{ID: 1, State: types.ServerAvailable}
	s.servers[2] = &types.Server{ID: 2, State: types.ServerAvailable}
	s.bumpVersion() // opens the ack/stable barriers for this version over {1, 2}
	version := s.version

	_, advanced := s.applyConfigAck(1, version)
	assert.False(t, advanced, "barrier should not advance until every member acks")

	_, advanced = s.applyConfigAck(2, version)
	assert.True(t, advanced, "barrier should advance once every member has acked")
}

func TestApplyCheckpointStableIgnoresStaleVersion(t *testing.T) {
	s := newState()
	s.applyServerRegister(1, "")
	s.version = 10

	code, _ := s.applyCheckpointStable(1, 5, 100)
	assert.Equal(t, types.Success, code)
	assert.Equal(t, uint64(0), s.stableCheckpoint)

	code, _ = s.applyCheckpointStable(1, 10, 100)
	assert.Equal(t, types.Success, code)
	assert.Equal(t, uint64(100), s.stableCheckpoint)
}

func TestApplyCheckpointIncrementsMonotonically(t *testing.T) {
	s := newState()
	s.applyCheckpoint()
	s.applyCheckpoint()
	assert.Equal(t, uint64(2), s.checkpoint)
}

func TestApplyCheckpointStableAdvancesBarrierOverCheckpointMembership(t *testing.T) {
	s := newState()
	s.servers[1] = &types.Server{ID: 1, State: types.ServerAvailable}
	s.applyCheckpoint() // opens the checkpoint barrier over {1} for checkpoint 1
	checkpoint := s.checkpoint

	_, advanced := s.applyCheckpointStable(1, s.version, checkpoint)
	assert.True(t, advanced, "sole member's report should advance the checkpoint barrier")
}

func TestApplyDebugDumpReportsCounts(t *testing.T) {
	s := newState()
	s.applyInit(7)
	s.applyServerRegister(1, "")
	out := s.applyDebugDump()
	assert.Contains(t, out, "cluster=7")
	assert.Contains(t, out, "servers=1")
}

func TestCurrentMembersOnlyIncludesAvailableServers(t *testing.T) {
	s := newState()
	s.applyServerRegister(1, "")
	s.applyServerRegister(2, "")
	s.applyServerOnline(1, "h1")

	members := s.currentMembers()
	assert.Equal(t, []types.ServerID{1}, members)
}
