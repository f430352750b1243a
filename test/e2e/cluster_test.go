package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/hyperfold/pkg/client"
	"github.com/cuemby/hyperfold/pkg/types"
	"github.com/cuemby/hyperfold/test/framework"
)

// TestBasicClusterOperations tests basic cluster initialization and
// keyed read/write/delete operations against a single-coordinator,
// single-storage-daemon cluster.
func TestBasicClusterOperations(t *testing.T) {
	config := framework.DefaultClusterConfig()
	config.NumCoordinators = 1
	config.NumStorageDaemons = 1

	cluster, err := framework.NewCluster(config)
	if err != nil {
		t.Fatalf("Failed to create cluster: %v", err)
	}
	defer func() { _ = cluster.Cleanup() }()

	if err := cluster.Start(); err != nil {
		t.Fatalf("Failed to start cluster: %v", err)
	}
	defer func() { _ = cluster.Stop() }()

	assert := framework.NewAssertions(t)
	waiter := framework.DefaultWaiter()
	ctx := context.Background()

	leader, err := cluster.GetLeader()
	if err != nil {
		t.Fatalf("Failed to get leader: %v", err)
	}

	space := types.Space{
		Name:           "counters",
		FaultTolerance: 1,
		Schema: types.Schema{
			Attributes: []types.Attribute{
				{Name: "key", Type: "string"},
				{Name: "count", Type: "int64"},
			},
		},
	}
	if code, err := leader.Admin.SpaceAdd(space); err != nil || code != types.Success {
		t.Fatalf("Failed to add space: err=%v code=%v", err, code)
	}
	if err := waiter.WaitForSpace(ctx, cluster, "counters"); err != nil {
		t.Fatalf("space never appeared: %v", err)
	}

	c := framework.NewClient(leader.Admin)
	defer c.Close()

	t.Run("VerifyClusterState", func(t *testing.T) {
		if err := waiter.WaitForLeaderElection(ctx, cluster); err != nil {
			t.Fatalf("Leader election failed: %v", err)
		}

		assert.QuorumSize(1, cluster)

		if err := waiter.WaitForServerCount(ctx, cluster, 1); err != nil {
			t.Fatalf("Expected 1 available storage daemon: %v", err)
		}
	})

	t.Run("PutAndGetKey", func(t *testing.T) {
		resultCode := c.PutValue("counters", "widget", []client.FuncallValue{
			{Name: "count", Func: types.FuncSet, Arg1: int64(1)},
		})
		if resultCode != types.RSuccess {
			t.Fatalf("put failed: %s", resultCode)
		}

		if err := waiter.WaitForKey(ctx, c, "counters", "widget"); err != nil {
			t.Fatalf("key never visible: %v", err)
		}

		value := assert.KeyExists("counters", "widget", c)
		t.Logf("widget value: %v", value)
	})

	t.Run("UpdateKeyViaFuncall", func(t *testing.T) {
		resultCode := c.PutValue("counters", "widget", []client.FuncallValue{
			{Name: "count", Func: types.FuncNumAdd, Arg1: int64(4)},
		})
		if resultCode != types.RSuccess {
			t.Fatalf("update failed: %s", resultCode)
		}

		value := assert.KeyExists("counters", "widget", c)
		t.Logf("widget value after increment: %v", value)
	})

	t.Run("KeyDeletion", func(t *testing.T) {
		resultCode := c.DeleteValue("counters", "widget")
		if resultCode != types.RSuccess {
			t.Fatalf("delete failed: %s", resultCode)
		}

		if err := waiter.WaitForKeyDeleted(ctx, c, "counters", "widget"); err != nil {
			t.Fatalf("key not deleted: %v", err)
		}

		assert.KeyDeleted("counters", "widget", c)
	})
}

// TestMultiCoordinatorCluster tests a 3-coordinator HA cluster and leader
// failover behavior.
func TestMultiCoordinatorCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping multi-coordinator test in short mode")
	}

	config := framework.DefaultClusterConfig()
	config.NumCoordinators = 3
	config.NumStorageDaemons = 2

	cluster, err := framework.NewCluster(config)
	if err != nil {
		t.Fatalf("Failed to create cluster: %v", err)
	}
	defer func() { _ = cluster.Cleanup() }()

	if err := cluster.Start(); err != nil {
		t.Fatalf("Failed to start cluster: %v", err)
	}
	defer func() { _ = cluster.Stop() }()

	assert := framework.NewAssertions(t)
	waiter := framework.DefaultWaiter()
	ctx := context.Background()

	t.Run("VerifyHACluster", func(t *testing.T) {
		if err := waiter.WaitForLeaderElection(ctx, cluster); err != nil {
			t.Fatalf("Leader election failed: %v", err)
		}

		assert.QuorumSize(3, cluster)

		if err := waiter.WaitForServerCount(ctx, cluster, 2); err != nil {
			t.Fatalf("Expected 2 available storage daemons: %v", err)
		}
	})

	t.Run("LeaderFailover", func(t *testing.T) {
		originalLeader, err := cluster.GetLeader()
		if err != nil {
			t.Fatalf("Failed to get leader: %v", err)
		}
		t.Logf("Original leader: %s", originalLeader.ID)

		if err := cluster.KillCoordinator(originalLeader.ID); err != nil {
			t.Fatalf("Failed to kill leader: %v", err)
		}

		time.Sleep(5 * time.Second) // give raft time to detect the failure

		if err := waiter.WaitForLeaderElection(ctx, cluster); err != nil {
			t.Fatalf("New leader not elected: %v", err)
		}

		newLeader, err := cluster.GetLeader()
		if err != nil {
			t.Fatalf("Failed to get new leader: %v", err)
		}
		if newLeader.ID == originalLeader.ID {
			t.Errorf("Leader did not change after failover")
		}
		t.Logf("New leader: %s", newLeader.ID)

		// Cluster must still accept schema and data-plane operations
		// through the new leader.
		space := types.Space{
			Name:           "after-failover",
			FaultTolerance: 2,
			Schema: types.Schema{
				Attributes: []types.Attribute{{Name: "key", Type: "string"}},
			},
		}
		if code, err := newLeader.Admin.SpaceAdd(space); err != nil || code != types.Success {
			t.Fatalf("Failed to add space after failover: err=%v code=%v", err, code)
		}
		if err := waiter.WaitForSpace(ctx, cluster, "after-failover"); err != nil {
			t.Fatalf("space never appeared after failover: %v", err)
		}

		c := framework.NewClient(newLeader.Admin)
		defer c.Close()

		resultCode := c.PutValue("after-failover", "k1", []client.FuncallValue{
			{Name: "key", Func: types.FuncSet, Arg1: "k1"},
		})
		if resultCode != types.RSuccess {
			t.Fatalf("put after failover failed: %s", resultCode)
		}
		if err := waiter.WaitForKey(ctx, c, "after-failover", "k1"); err != nil {
			t.Fatalf("key never visible after failover: %v", err)
		}
		assert.KeyExists("after-failover", "k1", c)
	})
}
