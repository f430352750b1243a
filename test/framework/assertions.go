package framework

import (
	"context"
	"strings"
	"time"

	"github.com/cuemby/hyperfold/pkg/types"
)

// Assertions provides test assertion helpers
type Assertions struct {
	t TestingT
}

// NewAssertions creates a new Assertions instance
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// KeyExists asserts that a key exists in a space and returns its value.
func (a *Assertions) KeyExists(space string, key interface{}, client *Client) interface{} {
	a.t.Helper()

	value, code := client.GetValue(space, key)
	if code != types.RSuccess {
		a.t.Fatalf("key does not exist in space %s: %s", space, code)
	}
	return value
}

// KeyDeleted asserts that a key no longer exists in a space.
func (a *Assertions) KeyDeleted(space string, key interface{}, client *Client) {
	a.t.Helper()

	_, code := client.GetValue(space, key)
	if code != types.RNotFound {
		a.t.Fatalf("key %v in space %s still exists, expected it to be deleted (code: %s)", key, space, code)
	}
}

// HasLeader asserts that the cluster has a leader
func (a *Assertions) HasLeader(cluster *Cluster) {
	a.t.Helper()

	leader, err := cluster.GetLeader()
	if err != nil {
		a.t.Fatalf("Cluster has no leader: %v", err)
	}

	if leader == nil {
		a.t.Fatalf("Leader is nil")
	}
}

// QuorumSize asserts that the cluster has the expected number of
// coordinator replicas.
func (a *Assertions) QuorumSize(expected int, cluster *Cluster) {
	a.t.Helper()

	if len(cluster.Coordinators) != expected {
		a.t.Fatalf("Cluster has %d coordinators, expected %d", len(cluster.Coordinators), expected)
	}
}

// ServerCount asserts that the cluster has the expected number of
// AVAILABLE storage daemons in the leader's configuration.
func (a *Assertions) ServerCount(expected int, cluster *Cluster) {
	a.t.Helper()

	leader, err := cluster.GetLeader()
	if err != nil {
		a.t.Fatalf("Failed to get leader: %v", err)
	}

	cfg, err := leader.Admin.Configuration()
	if err != nil {
		a.t.Fatalf("Failed to fetch configuration: %v", err)
	}

	available := 0
	for _, srv := range cfg.Servers {
		if srv.State == types.ServerAvailable {
			available++
		}
	}

	if available != expected {
		a.t.Fatalf("Cluster has %d available servers, expected %d", available, expected)
	}
}

// ServerOnline asserts that a given server id is AVAILABLE in the
// leader's configuration.
func (a *Assertions) ServerOnline(id types.ServerID, cluster *Cluster) {
	a.t.Helper()

	leader, err := cluster.GetLeader()
	if err != nil {
		a.t.Fatalf("Failed to get leader: %v", err)
	}

	cfg, err := leader.Admin.Configuration()
	if err != nil {
		a.t.Fatalf("Failed to fetch configuration: %v", err)
	}

	srv, ok := cfg.ServerByID(id)
	if !ok {
		a.t.Fatalf("Server %d not present in configuration", id)
	}
	if srv.State != types.ServerAvailable {
		a.t.Fatalf("Server %d has state %s, expected AVAILABLE", id, srv.State)
	}
}

// SpaceExists asserts that a space exists in the leader's configuration.
func (a *Assertions) SpaceExists(name string, cluster *Cluster) {
	a.t.Helper()

	leader, err := cluster.GetLeader()
	if err != nil {
		a.t.Fatalf("Failed to get leader: %v", err)
	}

	cfg, err := leader.Admin.Configuration()
	if err != nil {
		a.t.Fatalf("Failed to fetch configuration: %v", err)
	}

	if cfg.SpaceByName(name) == nil {
		a.t.Fatalf("Space %s does not exist", name)
	}
}

// Eventually repeatedly runs a condition until it returns true or timeout occurs
func (a *Assertions) Eventually(condition func() bool, timeout, interval time.Duration, msg string) {
	a.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.t.Fatalf("Timeout waiting for condition: %s (timeout: %v)", msg, timeout)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// EventuallyWithContext is like Eventually but uses a provided context
func (a *Assertions) EventuallyWithContext(ctx context.Context, condition func() bool, interval time.Duration, msg string) {
	a.t.Helper()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.t.Fatalf("Context cancelled waiting for condition: %s (error: %v)", msg, ctx.Err())
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// NoError asserts that the error is nil
func (a *Assertions) NoError(err error, msg string) {
	a.t.Helper()

	if err != nil {
		a.t.Fatalf("%s: %v", msg, err)
	}
}

// Error asserts that the error is not nil
func (a *Assertions) Error(err error, msg string) {
	a.t.Helper()

	if err == nil {
		a.t.Fatalf("%s: expected error but got nil", msg)
	}
}

// Equal asserts that two values are equal
func (a *Assertions) Equal(expected, actual interface{}, msg string) {
	a.t.Helper()

	if expected != actual {
		a.t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// NotEqual asserts that two values are not equal
func (a *Assertions) NotEqual(expected, actual interface{}, msg string) {
	a.t.Helper()

	if expected == actual {
		a.t.Fatalf("%s: expected values to be different, but both are %v", msg, expected)
	}
}

// True asserts that a condition is true
func (a *Assertions) True(condition bool, msg string) {
	a.t.Helper()

	if !condition {
		a.t.Fatalf("%s: expected true, got false", msg)
	}
}

// False asserts that a condition is false
func (a *Assertions) False(condition bool, msg string) {
	a.t.Helper()

	if condition {
		a.t.Fatalf("%s: expected false, got true", msg)
	}
}

// Contains asserts that a string contains a substring
func (a *Assertions) Contains(haystack, needle, msg string) {
	a.t.Helper()

	if !strings.Contains(haystack, needle) {
		a.t.Fatalf("%s: expected %q to contain %q", msg, haystack, needle)
	}
}

// NotContains asserts that a string does not contain a substring
func (a *Assertions) NotContains(haystack, needle, msg string) {
	a.t.Helper()

	if strings.Contains(haystack, needle) {
		a.t.Fatalf("%s: expected %q not to contain %q", msg, haystack, needle)
	}
}

// Len asserts that a slice or map has a specific length
func (a *Assertions) Len(obj interface{}, expected int, msg string) {
	a.t.Helper()

	var length int

	switch v := obj.(type) {
	case []interface{}:
		length = len(v)
	case map[string]interface{}:
		length = len(v)
	case string:
		length = len(v)
	default:
		a.t.Fatalf("%s: unsupported type for Len assertion: %T", msg, obj)
		return
	}

	if length != expected {
		a.t.Fatalf("%s: expected length %d, got %d", msg, expected, length)
	}
}

// Nil asserts that a value is nil
func (a *Assertions) Nil(obj interface{}, msg string) {
	a.t.Helper()

	if obj != nil {
		a.t.Fatalf("%s: expected nil, got %v", msg, obj)
	}
}

// NotNil asserts that a value is not nil
func (a *Assertions) NotNil(obj interface{}, msg string) {
	a.t.Helper()

	if obj == nil {
		a.t.Fatalf("%s: expected non-nil value", msg)
	}
}

// Logf logs a formatted message (non-failing)
func (a *Assertions) Logf(format string, args ...interface{}) {
	a.t.Helper()
	a.t.Logf(format, args...)
}

// Log logs a message (non-failing)
func (a *Assertions) Log(msg string) {
	a.t.Helper()
	a.t.Logf("%s", msg)
}

// Step logs a test step (for visibility in test output)
func (a *Assertions) Step(step string) {
	a.t.Helper()
	a.t.Logf("\n==> %s", step)
}

// Success logs a success message
func (a *Assertions) Success(msg string) {
	a.t.Helper()
	a.t.Logf("✓ %s", msg)
}

// Info logs an informational message
func (a *Assertions) Info(msg string) {
	a.t.Helper()
	a.t.Logf("ℹ %s", msg)
}

// Warning logs a warning message
func (a *Assertions) Warning(msg string) {
	a.t.Helper()
	a.t.Logf("⚠ %s", msg)
}

// Errorf logs an error and fails the test
func (a *Assertions) Errorf(format string, args ...interface{}) {
	a.t.Helper()
	a.t.Errorf(format, args...)
}

// Fatalf logs a fatal error and stops the test immediately
func (a *Assertions) Fatalf(format string, args ...interface{}) {
	a.t.Helper()
	a.t.Fatalf(format, args...)
}

// FailNow fails the test immediately without logging
func (a *Assertions) FailNow() {
	a.t.Helper()
	a.t.FailNow()
}

// Fail marks the test as failed but continues execution
func (a *Assertions) Fail(msg string) {
	a.t.Helper()
	a.t.Errorf("Test failed: %s", msg)
}
