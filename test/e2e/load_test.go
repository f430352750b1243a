package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/hyperfold/pkg/client"
	"github.com/cuemby/hyperfold/pkg/types"
	"github.com/cuemby/hyperfold/test/framework"
)

// TestLoadSmall tests basic load handling with 500 keys.
func TestLoadSmall(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping load test in short mode")
	}

	testLoad(t, LoadConfig{
		Name:            "Small",
		NumCoordinators: 1,
		NumStorageDaemons: 2,
		NumKeys:         500,
		MaxPutTime:      2 * time.Minute,
	})
}

// TestLoadMedium tests moderate load handling with 2000 keys.
func TestLoadMedium(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping medium load test in short mode")
	}

	testLoad(t, LoadConfig{
		Name:            "Medium",
		NumCoordinators: 3,
		NumStorageDaemons: 5,
		NumKeys:         2000,
		MaxPutTime:      5 * time.Minute,
	})
}

// TestLoadLarge is a stress test and should be run manually.
func TestLoadLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping large load test in short mode")
	}

	t.Skip("Large load test disabled by default - run manually with go test -run TestLoadLarge")

	testLoad(t, LoadConfig{
		Name:            "Large",
		NumCoordinators: 3,
		NumStorageDaemons: 10,
		NumKeys:         10000,
		MaxPutTime:      15 * time.Minute,
	})
}

// LoadConfig defines load test parameters.
type LoadConfig struct {
	Name              string
	NumCoordinators   int
	NumStorageDaemons int
	NumKeys           int
	MaxPutTime        time.Duration
}

const loadSpaceName = "load-test"

// testLoad executes a load test against the given configuration.
func testLoad(t *testing.T, config LoadConfig) {
	t.Logf("Starting %s load test: %d keys", config.Name, config.NumKeys)

	clusterConfig := framework.DefaultClusterConfig()
	clusterConfig.NumCoordinators = config.NumCoordinators
	clusterConfig.NumStorageDaemons = config.NumStorageDaemons

	cluster, err := framework.NewCluster(clusterConfig)
	if err != nil {
		t.Fatalf("Failed to create cluster: %v", err)
	}
	defer cluster.Cleanup()

	if err := cluster.Start(); err != nil {
		t.Fatalf("Failed to start cluster: %v", err)
	}
	defer cluster.Stop()

	waiter := framework.DefaultWaiter()
	ctx := context.Background()

	var c *framework.Client

	t.Run("SetupCluster", func(t *testing.T) {
		if _, err := cluster.GetLeader(); err != nil {
			t.Fatalf("Failed to get leader: %v", err)
		}

		leader, err := cluster.GetLeader()
		if err != nil {
			t.Fatalf("Failed to get leader: %v", err)
		}

		if err := waiter.WaitForServerCount(ctx, cluster, config.NumStorageDaemons); err != nil {
			t.Fatalf("Expected %d storage daemons: %v", config.NumStorageDaemons, err)
		}

		space := types.Space{
			Name:           loadSpaceName,
			FaultTolerance: 1,
			Schema: types.Schema{
				Attributes: []types.Attribute{{Name: "key", Type: "string"}},
			},
		}
		if code, err := leader.Admin.SpaceAdd(space); err != nil || code != types.Success {
			t.Fatalf("Failed to add space: err=%v code=%v", err, code)
		}
		if err := waiter.WaitForSpace(ctx, cluster, loadSpaceName); err != nil {
			t.Fatalf("space never appeared: %v", err)
		}

		c = framework.NewClient(leader.Admin)

		t.Logf("cluster ready: %d coordinators, %d storage daemons", config.NumCoordinators, config.NumStorageDaemons)
	})
	defer func() {
		if c != nil {
			c.Close()
		}
	}()

	t.Run("PutKeys", func(t *testing.T) {
		t.Logf("Putting %d keys...", config.NumKeys)

		putStart := time.Now()
		failures := 0

		batchSize := 50
		numBatches := (config.NumKeys + batchSize - 1) / batchSize

		for batch := 0; batch < numBatches; batch++ {
			startIdx := batch * batchSize
			endIdx := (batch + 1) * batchSize
			if endIdx > config.NumKeys {
				endIdx = config.NumKeys
			}

			batchStart := time.Now()
			batchFailures := putKeyBatch(c, startIdx, endIdx)
			batchDuration := time.Since(batchStart)

			failures += batchFailures
			n := endIdx - startIdx

			if batchFailures == 0 {
				rate := float64(n) / batchDuration.Seconds()
				t.Logf("  Batch %d/%d: put %d keys in %v (%.1f keys/s)",
					batch+1, numBatches, n, batchDuration, rate)
			} else {
				t.Logf("  Batch %d/%d: put %d/%d keys (%d failed)",
					batch+1, numBatches, n-batchFailures, n, batchFailures)
			}
		}

		putDuration := time.Since(putStart)
		successCount := config.NumKeys - failures

		rate := float64(successCount) / putDuration.Seconds()
		t.Logf("key puts complete:")
		t.Logf("  Total time: %v", putDuration)
		t.Logf("  Success: %d/%d keys", successCount, config.NumKeys)
		t.Logf("  Throughput: %.2f puts/s", rate)

		if failures > 0 {
			failureRate := float64(failures) / float64(config.NumKeys) * 100
			if failureRate > 5.0 {
				t.Errorf("High failure rate: %.1f%% (%d/%d)", failureRate, failures, config.NumKeys)
			} else {
				t.Logf("failures: %d (%.1f%%)", failures, failureRate)
			}
		}

		if putDuration > config.MaxPutTime {
			t.Errorf("Key puts took too long: %v (max: %v)", putDuration, config.MaxPutTime)
		}
	})

	t.Run("APIPerformance", func(t *testing.T) {
		t.Log("Measuring get latency with load...")

		numRequests := 100
		latencies := make([]time.Duration, numRequests)

		for i := 0; i < numRequests; i++ {
			key := fmt.Sprintf("load-key-%d", i%config.NumKeys)
			start := time.Now()
			_, code := c.GetValue(loadSpaceName, key)
			latencies[i] = time.Since(start)

			if code != types.RSuccess {
				t.Logf("request %d returned %s", i, code)
			}
		}

		var sum time.Duration
		min := time.Hour
		max := time.Duration(0)

		for _, lat := range latencies {
			sum += lat
			if lat < min {
				min = lat
			}
			if lat > max {
				max = lat
			}
		}

		avg := sum / time.Duration(numRequests)

		t.Logf("get latency under load:")
		t.Logf("  Requests: %d", numRequests)
		t.Logf("  Average: %v", avg)
		t.Logf("  Min: %v", min)
		t.Logf("  Max: %v", max)

		if avg > 2*time.Second {
			t.Errorf("reads too slow under load: avg latency %v", avg)
		}
		if max > 10*time.Second {
			t.Errorf("read max latency too high: %v", max)
		}
	})

	t.Run("ClusterStability", func(t *testing.T) {
		leader, err := cluster.GetLeader()
		if err != nil {
			t.Fatalf("Failed to get leader: %v", err)
		}

		cfg, err := leader.Admin.Configuration()
		if err != nil {
			t.Fatalf("Failed to fetch configuration: %v", err)
		}

		available := 0
		for _, srv := range cfg.Servers {
			if srv.State == types.ServerAvailable {
				available++
			}
		}

		if available < config.NumStorageDaemons {
			t.Errorf("Not all storage daemons healthy: %d/%d", available, config.NumStorageDaemons)
		} else {
			t.Logf("all %d storage daemons healthy", available)
		}

		isLeader, _, err := leader.Admin.Status()
		if err != nil || !isLeader {
			t.Error("no stable leader after load test")
		} else {
			t.Logf("leader stable: %s", leader.ID)
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		t.Logf("Cleaning up %d test keys...", config.NumKeys)

		cleanupStart := time.Now()
		failures := 0

		batchSize := 50
		numBatches := (config.NumKeys + batchSize - 1) / batchSize

		for batch := 0; batch < numBatches; batch++ {
			startIdx := batch * batchSize
			endIdx := (batch + 1) * batchSize
			if endIdx > config.NumKeys {
				endIdx = config.NumKeys
			}

			batchFailures := deleteKeyBatch(c, startIdx, endIdx)
			failures += batchFailures

			if batch%5 == 0 {
				t.Logf("  Progress: %d/%d keys deleted", endIdx, config.NumKeys)
			}
		}

		cleanupDuration := time.Since(cleanupStart)

		if failures > 0 {
			t.Logf("cleanup: %d failures", failures)
		} else {
			t.Logf("cleanup complete in %v", cleanupDuration)
		}
	})
}

// putKeyBatch puts a batch of keys concurrently.
func putKeyBatch(c *framework.Client, startIdx, endIdx int) int {
	failures := 0
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := startIdx; i < endIdx; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			key := fmt.Sprintf("load-key-%d", idx)
			code := c.PutValue(loadSpaceName, key, []client.FuncallValue{
				{Name: "key", Func: types.FuncSet, Arg1: key},
			})
			if code != types.RSuccess {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	return failures
}

// deleteKeyBatch deletes a batch of keys concurrently.
func deleteKeyBatch(c *framework.Client, startIdx, endIdx int) int {
	failures := 0
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := startIdx; i < endIdx; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			key := fmt.Sprintf("load-key-%d", idx)
			code := c.DeleteValue(loadSpaceName, key)
			if code != types.RSuccess {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	return failures
}
