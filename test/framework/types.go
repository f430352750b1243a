package framework

import (
	"context"
	"time"
)

// ClusterConfig defines the configuration for a test cluster of
// coordinatord and storaged processes.
type ClusterConfig struct {
	// NumCoordinators is the number of raft coordinator replicas to start.
	NumCoordinators int
	// NumStorageDaemons is the number of storage daemons to start and
	// register once the coordinator has quorum.
	NumStorageDaemons int
	// DataDir is the base directory for cluster data.
	DataDir string
	// CoordinatorBinary is the path to the coordinatord binary.
	CoordinatorBinary string
	// StorageBinary is the path to the storaged binary.
	StorageBinary string
	// KeepOnFailure keeps data directories around after Cleanup (for
	// debugging a failed run).
	KeepOnFailure bool
	// LogLevel sets the logging level passed to every spawned process.
	LogLevel string
}

// Cluster represents a running test cluster: a raft coordinator group and
// the storage daemons registered against it.
type Cluster struct {
	Config         *ClusterConfig
	Coordinators   []*Coordinator
	StorageDaemons []*StorageDaemon

	ctx    context.Context
	cancel context.CancelFunc
}

// Coordinator represents one coordinatord replica in the test cluster.
type Coordinator struct {
	// ID is this replica's raft server id, passed as --server-id.
	ID string
	// BindAddr is the raft transport bind address.
	BindAddr string
	// AdminAddr is the admin/metrics HTTP bind address.
	AdminAddr string
	// Admin is an admin API client bound to AdminAddr.
	Admin *AdminClient
	// Process is the running coordinatord process.
	Process *Process
	// DataDir is the raft log/snapshot directory for this replica.
	DataDir string
	// IsLeader is refreshed by Cluster.GetLeader.
	IsLeader bool
}

// StorageDaemon represents one storaged process in the test cluster.
type StorageDaemon struct {
	// ID is this daemon's server id.
	ID uint64
	// ListenAddr is the wire protocol bind address.
	ListenAddr string
	// AdminAddr is this daemon's own health/metrics bind address.
	AdminAddr string
	// Process is the running storaged process.
	Process *Process
	// DataDir is the region data directory for this daemon.
	DataDir string
}

// TestContext provides utilities for test execution.
type TestContext struct {
	// T is the testing.T instance.
	T TestingT
	// Ctx is the context for test operations.
	Ctx context.Context
	// Cancel cancels the test context.
	Cancel context.CancelFunc
	// Timeout is the default timeout for operations.
	Timeout time.Duration
	// cleanup functions run after the test.
	cleanup []func()
}

// TestingT is an interface matching testing.T.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}
