package store

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var bucketLastAccessed = []byte("last_accessed")

// sidecar is the per-store mutable side table. It holds state that must
// survive restarts but may never influence content hashes — recording a
// read cannot be allowed to invalidate the Merkle root, so last-accessed
// timestamps live here instead of in the WAL.
type sidecar struct {
	db *bolt.DB

	mu    sync.RWMutex
	cache map[string]int64
}

// openSidecar opens (or creates) the store's sidecar database and scans
// it into memory.
func openSidecar(dir string) (*sidecar, error) {
	db, err := bolt.Open(filepath.Join(dir, "sidecar.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sidecar database: %w", err)
	}
	s := &sidecar{db: db, cache: make(map[string]int64)}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketLastAccessed)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketLastAccessed, err)
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				s.cache[string(k)] = int64(binary.LittleEndian.Uint64(v))
			}
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// lastAccessed returns the recorded read timestamp for id, zero if never
// read.
func (s *sidecar) lastAccessed(id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[id]
}

// touch records a read at ts.
func (s *sidecar) touch(id string, ts int64) error {
	s.mu.Lock()
	s.cache[id] = ts
	s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(ts))
		return tx.Bucket(bucketLastAccessed).Put([]byte(id), buf[:])
	})
}

func (s *sidecar) close() error {
	return s.db.Close()
}
