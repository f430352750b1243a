/*
Package types defines the core data structures shared across hyperfold.

This package holds the domain model described by the data model section of
the design: identifiers, servers, schemas, spaces, subspaces, regions,
transfers, configurations, and the small vocabularies (ReturnCode,
ResultCode, Predicate, FuncallName) that every other package switches on.
It has no behavior beyond validation helpers — datatype-specific logic
(hashing, encoding, capability flags) lives in pkg/datatype, and placement
logic lives in pkg/coordinator.

# Identifiers

Seven uint64 identifier kinds (ServerID, VirtualServerID, RegionID,
SubspaceID, SpaceID, TransferID, IndexID) are distinct Go types so a value
of one kind cannot be passed where another is expected. Zero is reserved
to mean "none" in every kind.

# Configuration

Configuration is the one structure every other package treats as ground
truth for routing: the client's dispatch decisions, a daemon's own view of
its region assignments, and the coordinator's own replies are all read off
a Configuration snapshot. Configurations are never mutated in place — a
topology change produces a new Configuration with Version one higher than
the last.

# Thread safety

All types in this package are plain data. Callers that share a
*Configuration, *Space, or similar across goroutines must treat it as
immutable once published, matching the pointer-swap discipline described
in the concurrency model: a reader never needs to lock a Configuration it
already holds.
*/
package types
