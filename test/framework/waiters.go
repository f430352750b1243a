package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/hyperfold/pkg/types"
)

// Waiter provides utilities for waiting on conditions with timeouts
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with sensible defaults (30s timeout, 1s interval)
func DefaultWaiter() *Waiter {
	return NewWaiter(30*time.Second, 1*time.Second)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForKey waits for a key to exist in a space.
func (w *Waiter) WaitForKey(ctx context.Context, client *Client, space string, key interface{}) error {
	return w.WaitFor(ctx, func() bool {
		_, code := client.GetValue(space, key)
		return code == types.RSuccess
	}, fmt.Sprintf("key to exist in space %s", space))
}

// WaitForKeyDeleted waits for a key to no longer exist in a space.
func (w *Waiter) WaitForKeyDeleted(ctx context.Context, client *Client, space string, key interface{}) error {
	return w.WaitFor(ctx, func() bool {
		_, code := client.GetValue(space, key)
		return code == types.RNotFound
	}, fmt.Sprintf("key to be deleted from space %s", space))
}

// WaitForLeaderElection waits for a leader to be elected in the cluster
func (w *Waiter) WaitForLeaderElection(ctx context.Context, cluster *Cluster) error {
	return w.WaitFor(ctx, func() bool {
		_, err := cluster.GetLeader()
		return err == nil
	}, "leader election to complete")
}

// WaitForQuorum waits for raft quorum to be established
func (w *Waiter) WaitForQuorum(ctx context.Context, cluster *Cluster) error {
	return w.WaitFor(ctx, func() bool {
		return cluster.hasQuorum()
	}, "raft quorum to be established")
}

// WaitForServerCount waits for a specific number of storage daemons to
// reach AVAILABLE in the coordinator's configuration.
func (w *Waiter) WaitForServerCount(ctx context.Context, cluster *Cluster, count int) error {
	return w.WaitFor(ctx, func() bool {
		leader, err := cluster.GetLeader()
		if err != nil {
			return false
		}

		cfg, err := leader.Admin.Configuration()
		if err != nil {
			return false
		}

		available := 0
		for _, srv := range cfg.Servers {
			if srv.State == types.ServerAvailable {
				available++
			}
		}

		return available == count
	}, fmt.Sprintf("cluster to have %d available storage daemons", count))
}

// WaitForSpace waits for a space to appear in the coordinator's
// configuration.
func (w *Waiter) WaitForSpace(ctx context.Context, cluster *Cluster, name string) error {
	return w.WaitFor(ctx, func() bool {
		leader, err := cluster.GetLeader()
		if err != nil {
			return false
		}

		cfg, err := leader.Admin.Configuration()
		if err != nil {
			return false
		}

		return cfg.SpaceByName(name) != nil
	}, fmt.Sprintf("space %s to exist", name))
}

// WaitForSpaceDeleted waits for a space to no longer appear in the
// coordinator's configuration.
func (w *Waiter) WaitForSpaceDeleted(ctx context.Context, cluster *Cluster, name string) error {
	return w.WaitFor(ctx, func() bool {
		leader, err := cluster.GetLeader()
		if err != nil {
			return false
		}

		cfg, err := leader.Admin.Configuration()
		if err != nil {
			return false
		}

		return cfg.SpaceByName(name) == nil
	}, fmt.Sprintf("space %s to be deleted", name))
}

// WaitForConditionWithRetry waits for a condition with exponential backoff retry
func (w *Waiter) WaitForConditionWithRetry(ctx context.Context, condition func() (bool, error), description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	interval := w.interval
	maxInterval := 10 * time.Second

	for {
		ok, err := condition()
		if err != nil {
			return fmt.Errorf("error checking condition '%s': %w", description, err)
		}

		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-time.After(interval):
			// Exponential backoff
			interval = interval * 2
			if interval > maxInterval {
				interval = maxInterval
			}
		}
	}
}

// PollUntil polls a condition until it returns true or context is cancelled
func PollUntil(ctx context.Context, interval time.Duration, condition func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// PollUntilWithError polls a condition that can return an error
func PollUntilWithError(ctx context.Context, interval time.Duration, condition func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Check immediately
	if ok, err := condition(); err != nil {
		return err
	} else if ok {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ok, err := condition(); err != nil {
				return err
			} else if ok {
				return nil
			}
		}
	}
}

// Retry retries an operation with exponential backoff
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, operation func() error) error {
	var err error
	delay := initialDelay

	for i := 0; i < attempts; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
				delay = delay * 2
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}
