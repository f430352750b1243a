package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/hyperfold/pkg/types"
)

// rootBucket holds one nested bucket per region, keyed by the region's
// 8-byte big-endian ID, generalizing boltdb.go's bucket-per-entity-type
// layout to bucket-per-region.
var rootBucket = []byte("regions")

// BoltStore implements Store on a single bbolt file, one nested bucket
// per region. Grounded on pkg/storage/boltdb.go's NewBoltStore/CreateNode
// pattern, replacing JSON-marshaled typed entities with opaque byte
// values the caller (pkg/datatype's object codec) has already encoded.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "hyperfold.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: creating root bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func regionKey(region types.RegionID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(region))
	return buf[:]
}

func (s *BoltStore) regionBucket(tx *bolt.Tx, region types.RegionID, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket(rootBucket)
	key := regionKey(region)
	if create {
		return root.CreateBucketIfNotExists(key)
	}
	return root.Bucket(key), nil
}

func (s *BoltStore) Get(region types.RegionID, key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.regionBucket(tx, region, false)
		if err != nil || b == nil {
			return err
		}
		if raw := b.Get(key); raw != nil {
			value = append([]byte(nil), raw...) // copy: invalid once the view closes
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("storage: get: %w", err)
	}
	return value, value != nil, nil
}

func (s *BoltStore) Put(region types.RegionID, key, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.regionBucket(tx, region, true)
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

func (s *BoltStore) Delete(region types.RegionID, key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.regionBucket(tx, region, false)
		if err != nil || b == nil {
			return err
		}
		return b.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

func (s *BoltStore) Iterate(region types.RegionID, fn func(key, value []byte) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.regionBucket(tx, region, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(fn)
	})
	if err != nil {
		return fmt.Errorf("storage: iterate: %w", err)
	}
	return nil
}

func (s *BoltStore) DropRegion(region types.RegionID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		key := regionKey(region)
		if root.Bucket(key) == nil {
			return nil
		}
		return root.DeleteBucket(key)
	})
	if err != nil {
		return fmt.Errorf("storage: drop region: %w", err)
	}
	return nil
}
