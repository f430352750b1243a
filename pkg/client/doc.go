/*
Package client implements the caller-facing request pipeline of a
hyperspace-hashed key-value store.

# Architecture

Unlike a conventional RPC client that blocks one goroutine per call, this
package follows an asynchronous request pipeline: every public operation
(Get, Put, Search, ...) prepares a request, dispatches it to one or more
daemons, and returns a pending operation id immediately. Callers drain
completions by calling Loop, the pipeline's single suspension point,
which returns the id of whichever operation became ready first - by
reply, by failure, or by reconfiguration.

	┌────────────────────── APPLICATION CODE ───────────────────────┐
	│                                                                │
	│  id, _ := c.Get(space, key)                                   │
	│  ready, _ := c.Loop(timeout)                                  │
	│  value, code := c.Result(ready)                               │
	│                                                                │
	└──────────────────────────┬─────────────────────────────────────┘
	                           │
	┌──────────────────────────▼──────── pkg/client ─────────────────┐
	│                                                                  │
	│  prepare.go   - schema lookup, predicate/funcall resolution     │
	│  dispatch.go  - point-leader / region-set routing               │
	│  aggregate.go - count/sum/search/sorted_search/group_* reducers │
	│  client.go    - pending-op table, configuration cache, Loop     │
	│                                                                  │
	└──────────────────────────┬──────────────────────────────────────┘
	                           │ Transport (pkg/wire)
	                           ▼
	                     daemon replicas

# Configuration tracking

A Client tracks the coordinator's configuration through the ConfigSource
interface and reconciles in-flight operations whenever the configuration
changes underneath them: a leg whose server/virtual mapping no longer
holds fails with a reconfigure result rather than hanging or silently
talking to the stale replica.

# Thread safety

Preparing and dispatching new operations from multiple goroutines while
another goroutine blocks in Loop is safe; Client's internal state is
guarded by a mutex. Loop itself is the pipeline's single suspension
point and is not meant to be called concurrently with itself.
*/
package client
