/*
Package storage provides BoltDB-backed persistence for the byte-keyed
values a daemon holds on behalf of the regions it replicates.

# Architecture

hyperfold uses BoltDB (bbolt) for embedded, transactional storage with
zero external dependencies:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              BoltStore                       │          │
	│  │  - File: <dataDir>/hyperfold.db              │          │
	│  │  - Format: B+tree with MVCC                  │          │
	│  │  - Transactions: ACID with fsync             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         regions (root bucket)                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ region 1 (nested bucket)   │             │          │
	│  │  │ region 2 (nested bucket)   │             │          │
	│  │  │ region N (nested bucket)   │             │          │
	│  │  └────────────────────────────┘             │          │
	│  │  key: 8-byte big-endian RegionID             │          │
	│  │  value: that region's own key/value table    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Transaction Management                │          │
	│  │  - Read: db.View() - Concurrent reads       │          │
	│  │  - Write: db.Update() - Serialized writes   │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

A region's bucket holds the opaque byte values pkg/datatype's object
codec has already serialized; this package never interprets a key or
value's bytes. The key for a keyed operation is the object's primary
key attribute, encoded by the caller; the value is that object's
attributes, canonicalized and serialized by pkg/datatype.

# Core Components

BoltStore:
  - Implements Store using BoltDB
  - One nested bucket per region, lazily created on first Put
  - Thread-safe via BoltDB's transaction model

Region isolation:
  - Every Store method takes a RegionID alongside its key
  - Two regions may hold byte-identical keys without collision
  - DropRegion removes a whole region's bucket in one transaction

Transaction Model:
  - Read transactions: db.View() - concurrent, consistent snapshots
  - Write transactions: db.Update() - serialized, atomic commits
  - Isolation: snapshot isolation (MVCC)
  - Durability: fsync on commit ensures crash recovery

# Usage

	store, err := storage.NewBoltStore("/var/lib/hyperfold/daemon-1")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	err = store.Put(region, []byte("alice"), encodedValue)
	value, ok, err := store.Get(region, []byte("alice"))
	err = store.Delete(region, []byte("alice"))
	err = store.Iterate(region, func(k, v []byte) error {
		// ...
		return nil
	})
	err = store.DropRegion(region)

# Design Patterns

Idempotent Deletes:
  - Delete returns no error if key doesn't exist
  - Safe to call multiple times

Error Wrapping:
  - Operation errors wrapped with context via fmt.Errorf("...: %w", err)

# Integration Points

This package integrates with:

  - cmd/storaged: owns one BoltStore per data directory and serves keyed
    operations against it
  - pkg/datatype: encodes/decodes the values this package stores

DropRegion has no caller outside this package's tests; pkg/daemonlink does
not call it when a transfer completes.

# See Also

  - pkg/types for RegionID and Configuration
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
