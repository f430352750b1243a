// Package storage is a daemon's local table of the byte-keyed values it
// holds for each region it replicates, per spec.md §4.10. It knows
// nothing about hyperspace geometry, chain replication order, or
// subspace attribute layout; it is a flat per-region key-value table,
// one level below pkg/datatype's object encoding.
package storage

import "github.com/cuemby/hyperfold/pkg/types"

// Store is a daemon's region-scoped key-value table. Every method is
// scoped to one region so a single daemon process hosting many regions
// (one per replica it's a member of) never risks a key collision across
// regions that happen to share a byte-identical key.
type Store interface {
	// Get returns an object's encoded value and true if key exists under
	// region, or nil and false if it does not.
	Get(region types.RegionID, key []byte) ([]byte, bool, error)

	// Put unconditionally writes value at key in region, creating the
	// region's table on first use.
	Put(region types.RegionID, key, value []byte) error

	// Delete removes key from region. Deleting an absent key is a no-op.
	Delete(region types.RegionID, key []byte) error

	// Iterate calls fn once per key/value pair currently stored under
	// region, in key order. Iteration stops and returns fn's error as
	// soon as fn returns one.
	Iterate(region types.RegionID, fn func(key, value []byte) error) error

	// DropRegion discards every key stored under region, used once a
	// transfer has handed a region's replica to another server and this
	// daemon no longer hosts it.
	DropRegion(region types.RegionID) error

	Close() error
}
