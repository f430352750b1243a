package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cuemby/hyperfold/pkg/types"
	"github.com/cuemby/hyperfold/test/framework"
)

// TestCoordinatorHealthEndpoints verifies the /health, /ready, and /live
// endpoints a coordinatord replica exposes on its admin address.
func TestCoordinatorHealthEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cluster, waiter, ctx := startSingleNodeCluster(t)
	defer func() { _ = cluster.Cleanup() }()
	defer func() { _ = cluster.Stop() }()

	if err := waiter.WaitForLeaderElection(ctx, cluster); err != nil {
		t.Fatalf("Leader election failed: %v", err)
	}

	leader, err := cluster.GetLeader()
	if err != nil {
		t.Fatalf("Failed to get leader: %v", err)
	}

	httpClient := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/health", "/ready", "/live"} {
		resp, err := httpClient.Get("http://" + leader.AdminAddr + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s returned status %d, expected 200", path, resp.StatusCode)
		}
	}

	t.Log("coordinator health/ready/live endpoints all report healthy")
}

// TestStorageDaemonHealthEndpoints verifies the equivalent endpoints a
// storaged process exposes on its own admin address.
func TestStorageDaemonHealthEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cluster, waiter, ctx := startSingleNodeCluster(t)
	defer func() { _ = cluster.Cleanup() }()
	defer func() { _ = cluster.Stop() }()

	if err := waiter.WaitForServerCount(ctx, cluster, 1); err != nil {
		t.Fatalf("Expected 1 available storage daemon: %v", err)
	}

	if len(cluster.StorageDaemons) != 1 {
		t.Fatalf("expected 1 storage daemon in cluster, got %d", len(cluster.StorageDaemons))
	}
	daemon := cluster.StorageDaemons[0]

	httpClient := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/health", "/ready", "/live"} {
		resp, err := httpClient.Get("http://" + daemon.AdminAddr + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s returned status %d, expected 200", path, resp.StatusCode)
		}
	}

	t.Log("storage daemon health/ready/live endpoints all report healthy")
}

// TestStorageDaemonCrashDetection verifies that killing a storage daemon
// and reporting it suspect moves it out of AVAILABLE in the coordinator's
// configuration, the way a real deployment's failure detector would.
func TestStorageDaemonCrashDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	config := framework.DefaultClusterConfig()
	config.NumCoordinators = 1
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

	waiter := framework.DefaultWaiter()
	ctx := context.Background()

	if err := waiter.WaitForServerCount(ctx, cluster, 2); err != nil {
		t.Fatalf("Expected 2 available storage daemons: %v", err)
	}

	leader, err := cluster.GetLeader()
	if err != nil {
		t.Fatalf("Failed to get leader: %v", err)
	}

	victim := cluster.StorageDaemons[0]
	t.Logf("Killing storage daemon %d...", victim.ID)
	if err := victim.Process.Kill(); err != nil {
		t.Fatalf("Failed to kill storage daemon: %v", err)
	}

	victimID := types.ServerID(victim.ID)
	suspectCode, err := leader.Admin.ServerSuspect(victimID)
	if err != nil {
		t.Fatalf("server_suspect request failed: %v", err)
	}
	if suspectCode != types.Success {
		t.Fatalf("server_suspect rejected with code %s", suspectCode)
	}

	if err := waiter.WaitFor(ctx, func() bool {
		cfg, err := leader.Admin.Configuration()
		if err != nil {
			return false
		}
		srv, ok := cfg.ServerByID(victimID)
		return ok && srv.State != types.ServerAvailable
	}, "killed storage daemon to leave AVAILABLE"); err != nil {
		t.Fatalf("killed storage daemon never left AVAILABLE: %v", err)
	}

	t.Log("crash of a storage daemon was reflected in coordinator configuration")
}

// startSingleNodeCluster spins up the smallest possible cluster (1
// coordinator, 1 storage daemon) for tests that only need healthy
// endpoints, not multi-node behavior.
func startSingleNodeCluster(t *testing.T) (*framework.Cluster, *framework.Waiter, context.Context) {
	t.Helper()

	config := framework.DefaultClusterConfig()
	config.NumCoordinators = 1
	config.NumStorageDaemons = 1

	cluster, err := framework.NewCluster(config)
	if err != nil {
		t.Fatalf("Failed to create cluster: %v", err)
	}

	if err := cluster.Start(); err != nil {
		t.Fatalf("Failed to start cluster: %v", err)
	}

	return cluster, framework.DefaultWaiter(), context.Background()
}
