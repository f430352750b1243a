package framework

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/hyperfold/pkg/types"
)

// DefaultClusterConfig returns a default cluster configuration, reading
// overrides from the environment the way the teacher's cluster harness
// read WARREN_BINARY/WARREN_TEST_DATA_DIR.
func DefaultClusterConfig() *ClusterConfig {
	coordinatorBinary := os.Getenv("HYPERFOLD_COORDINATOR_BINARY")
	if coordinatorBinary == "" {
		coordinatorBinary = "bin/coordinatord"
	}

	storageBinary := os.Getenv("HYPERFOLD_STORAGE_BINARY")
	if storageBinary == "" {
		storageBinary = "bin/storaged"
	}

	dataDir := os.Getenv("HYPERFOLD_TEST_DATA_DIR")
	if dataDir == "" {
		dataDir = "/tmp/hyperfold-test"
	}

	return &ClusterConfig{
		NumCoordinators:   3,
		NumStorageDaemons: 2,
		DataDir:           dataDir,
		CoordinatorBinary: coordinatorBinary,
		StorageBinary:     storageBinary,
		KeepOnFailure:     false,
		LogLevel:          "info",
	}
}

// NewCluster creates a new test cluster with the given configuration.
func NewCluster(config *ClusterConfig) (*Cluster, error) {
	if config == nil {
		config = DefaultClusterConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Cluster{
		Config:         config,
		Coordinators:   make([]*Coordinator, 0, config.NumCoordinators),
		StorageDaemons: make([]*StorageDaemon, 0, config.NumStorageDaemons),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start starts the entire cluster: the coordinator replicas first,
// then, once quorum is established, the storage daemons (each
// registered with the leader before its process is spawned).
func (c *Cluster) Start() error {
	for i := 0; i < c.Config.NumCoordinators; i++ {
		if err := c.startCoordinator(i); err != nil {
			return fmt.Errorf("failed to start coordinator-%d: %w", i+1, err)
		}
	}

	if err := c.WaitForQuorum(); err != nil {
		return fmt.Errorf("failed to establish quorum: %w", err)
	}

	for i := 0; i < c.Config.NumStorageDaemons; i++ {
		if err := c.startStorageDaemon(i); err != nil {
			return fmt.Errorf("failed to start storaged-%d: %w", i+1, err)
		}
	}

	return nil
}

// Stop stops the entire cluster gracefully, storage daemons first.
func (c *Cluster) Stop() error {
	for _, sd := range c.StorageDaemons {
		if sd.Process != nil {
			if err := sd.Process.Stop(); err != nil {
				return fmt.Errorf("failed to stop storaged %d: %w", sd.ID, err)
			}
		}
	}

	for _, coord := range c.Coordinators {
		if coord.Process != nil {
			if err := coord.Process.Stop(); err != nil {
				return fmt.Errorf("failed to stop coordinator %s: %w", coord.ID, err)
			}
		}
	}

	return nil
}

// Cleanup stops the cluster and removes its data directories unless
// KeepOnFailure is set.
func (c *Cluster) Cleanup() error {
	if err := c.Stop(); err != nil {
		fmt.Printf("Warning: error during stop: %v\n", err)
	}

	if c.cancel != nil {
		c.cancel()
	}

	if !c.Config.KeepOnFailure {
		if err := os.RemoveAll(c.Config.DataDir); err != nil {
			return fmt.Errorf("failed to remove data dir: %w", err)
		}
	}

	return nil
}

// GetLeader returns whichever coordinator replica currently reports
// itself as raft leader.
func (c *Cluster) GetLeader() (*Coordinator, error) {
	for _, coord := range c.Coordinators {
		if coord.Admin == nil {
			continue
		}

		isLeader, _, err := coord.Admin.Status()
		if err != nil {
			continue
		}

		coord.IsLeader = isLeader
		if isLeader {
			return coord, nil
		}
	}

	return nil, fmt.Errorf("no leader found in cluster")
}

// WaitForQuorum waits for a raft leader to be elected.
func (c *Cluster) WaitForQuorum() error {
	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for quorum: %w", ctx.Err())
		case <-ticker.C:
			if c.hasQuorum() {
				return nil
			}
		}
	}
}

// WaitForStorageDaemons waits for count storage daemons to reach
// AVAILABLE in the leader's configuration.
func (c *Cluster) WaitForStorageDaemons(count int) error {
	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for storage daemons: %w", ctx.Err())
		case <-ticker.C:
			leader, err := c.GetLeader()
			if err != nil {
				continue
			}

			cfg, err := leader.Admin.Configuration()
			if err != nil {
				continue
			}

			available := 0
			for _, srv := range cfg.Servers {
				if srv.State == types.ServerAvailable {
					available++
				}
			}

			if available >= count {
				return nil
			}
		}
	}
}

// KillCoordinator kills a specific coordinator replica (simulates a
// crash).
func (c *Cluster) KillCoordinator(id string) error {
	for _, coord := range c.Coordinators {
		if coord.ID == id {
			if coord.Process == nil {
				return fmt.Errorf("coordinator %s has no process", id)
			}
			return coord.Process.Kill()
		}
	}
	return fmt.Errorf("coordinator %s not found", id)
}

// RestartCoordinator restarts a specific coordinator replica in place,
// reusing its data directory so raft rejoins from its persisted log.
func (c *Cluster) RestartCoordinator(id string) error {
	for _, coord := range c.Coordinators {
		if coord.ID != id {
			continue
		}

		if coord.Process != nil {
			_ = coord.Process.Kill()
		}

		process := NewProcess(c.Config.CoordinatorBinary)
		process.Args = coord.Process.Args
		if err := process.Start(); err != nil {
			return fmt.Errorf("failed to restart coordinator %s: %w", id, err)
		}
		coord.Process = process

		return c.waitForHealth(coord.AdminAddr, 30*time.Second)
	}
	return fmt.Errorf("coordinator %s not found", id)
}

// Private helpers

func (c *Cluster) startCoordinator(index int) error {
	id := fmt.Sprintf("coordinator-%d", index+1)
	dataDir := filepath.Join(c.Config.DataDir, id)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	bindAddr := fmt.Sprintf("127.0.0.1:%d", 7000+index)
	adminAddr := fmt.Sprintf("127.0.0.1:%d", 7080+index)

	process := NewProcess(c.Config.CoordinatorBinary)
	args := []string{
		"--server-id=" + id,
		"--bind-addr=" + bindAddr,
		"--admin-addr=" + adminAddr,
		"--data-dir=" + dataDir,
		"--log-level=" + c.Config.LogLevel,
	}

	if index == 0 {
		process.Args = append([]string{"bootstrap"}, args...)
	} else {
		leader := c.Coordinators[0].AdminAddr
		process.Args = append([]string{"join", "--leader=" + leader}, args...)
	}

	if err := process.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	if err := c.waitForHealth(adminAddr, 30*time.Second); err != nil {
		return fmt.Errorf("admin API not ready: %w", err)
	}

	c.Coordinators = append(c.Coordinators, &Coordinator{
		ID:        id,
		BindAddr:  bindAddr,
		AdminAddr: adminAddr,
		Admin:     NewAdminClient(adminAddr),
		Process:   process,
		DataDir:   dataDir,
	})

	return nil
}

func (c *Cluster) startStorageDaemon(index int) error {
	serverID := types.ServerID(index + 1)
	id := fmt.Sprintf("storaged-%d", index+1)
	dataDir := filepath.Join(c.Config.DataDir, id)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	listenAddr := fmt.Sprintf("127.0.0.1:%d", 7100+index)
	adminAddr := fmt.Sprintf("127.0.0.1:%d", 7180+index)

	leader, err := c.GetLeader()
	if err != nil {
		return fmt.Errorf("failed to get leader: %w", err)
	}

	if code, err := leader.Admin.ServerRegister(serverID, listenAddr); err != nil {
		return fmt.Errorf("failed to register storage daemon: %w", err)
	} else if code != types.Success {
		return fmt.Errorf("server_register rejected with code %s", code)
	}

	process := NewProcess(c.Config.StorageBinary)
	process.Args = []string{
		fmt.Sprintf("--server-id=%d", serverID),
		"--listen-addr=" + listenAddr,
		"--admin-addr=" + adminAddr,
		"--coordinator-addr=" + leader.AdminAddr,
		"--data-dir=" + dataDir,
		"--log-level=" + c.Config.LogLevel,
	}

	if err := process.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	c.StorageDaemons = append(c.StorageDaemons, &StorageDaemon{
		ID:         uint64(serverID),
		ListenAddr: listenAddr,
		AdminAddr:  adminAddr,
		Process:    process,
		DataDir:    dataDir,
	})

	return nil
}

func (c *Cluster) hasQuorum() bool {
	_, err := c.GetLeader()
	return err == nil
}

func (c *Cluster) waitForHealth(adminAddr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	admin := NewAdminClient(adminAddr)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for admin API at %s: %w", adminAddr, ctx.Err())
		case <-ticker.C:
			if _, _, err := admin.Status(); err == nil {
				return nil
			}
		}
	}
}

func validateConfig(config *ClusterConfig) error {
	if config.NumCoordinators < 1 {
		return fmt.Errorf("NumCoordinators must be >= 1, got %d", config.NumCoordinators)
	}

	if config.NumCoordinators%2 == 0 {
		return fmt.Errorf("NumCoordinators should be odd for raft quorum, got %d", config.NumCoordinators)
	}

	if config.CoordinatorBinary == "" {
		return fmt.Errorf("CoordinatorBinary cannot be empty")
	}

	if config.StorageBinary == "" {
		return fmt.Errorf("StorageBinary cannot be empty")
	}

	if config.DataDir == "" {
		return fmt.Errorf("DataDir cannot be empty")
	}

	return nil
}
