package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/embedding"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/index"
	"github.com/cuemby/burrow/pkg/integrity"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/textindex"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/vector"
	"github.com/cuemby/burrow/pkg/wal"
)

// Options configures a store at open time.
type Options struct {
	Dir  string
	Meta *types.StoreMeta

	// Base is the source store's log when this store is a fork; reads
	// below Meta.ForkSeq overlay onto it.
	Base *wal.Log

	Broker *events.Broker

	SealRecords int
	SealBytes   int64
}

// Store binds one logical store's WAL, latest-version index, vector and
// text indexes, Merkle tree, and mutable sidecar, and serves its CRUD and
// query surface. Writes are serialized through a single mutex; reads run
// against the in-memory indexes concurrently.
type Store struct {
	meta   *types.StoreMeta
	dir    string
	logger zerolog.Logger
	broker *events.Broker

	// writeMu serializes every mutation. All writes flow through
	// appendRecord; the WAL is the source of truth and indexes follow it.
	writeMu sync.Mutex

	wal     *wal.Log
	latest  *index.Latest
	vectors *vector.Index
	text    *textindex.Index
	tree    *integrity.MerkleTree
	chain   types.Hash
	side    *sidecar
}

// Open loads a store from disk, replaying its log to rebuild every
// derived structure. Corrupt WAL tails are truncated during replay.
func Open(opts Options) (*Store, error) {
	storeID := opts.Meta.StoreID
	broker := opts.Broker
	walLog, err := wal.Open(wal.Options{
		Dir:         opts.Dir,
		StoreID:     storeID,
		Base:        opts.Base,
		BaseLimit:   opts.Meta.ForkSeq,
		BasePrev:    opts.Meta.ForkPrevHash,
		BaseTS:      opts.Meta.ForkTimestamp,
		SealRecords: opts.SealRecords,
		SealBytes:   opts.SealBytes,
		OnSeal: func(info *wal.SegmentInfo) {
			metrics.SegmentsSealed.WithLabelValues(storeID).Inc()
			if broker != nil {
				broker.Publish(&events.Event{
					Type:    events.EventSegmentSealed,
					StoreID: storeID,
					WALSeq:  info.LastSeq,
					Message: fmt.Sprintf("sealed segment %d", info.ID),
				})
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open wal for store %s: %w", opts.Meta.StoreID, err)
	}

	side, err := openSidecar(opts.Dir)
	if err != nil {
		walLog.Close()
		return nil, err
	}

	s := &Store{
		meta:   opts.Meta,
		dir:    opts.Dir,
		logger: log.ForStore("store", storeID),
		broker: opts.Broker,
		wal:    walLog,
		side:   side,
	}
	if err := s.rebuild(); err != nil {
		s.Close()
		return nil, err
	}
	s.logger.Info().
		Uint64("records", walLog.RecordCount()).
		Uint64("memories", s.latest.CountLive()).
		Msg("store opened")
	return s, nil
}

// rebuild replays the full visible history into fresh indexes and the
// Merkle tree, then streams live memories into the secondary indexes.
func (s *Store) rebuild() error {
	latest := index.NewLatest()
	tree := integrity.NewMerkleTree()
	chain := types.ZeroHash

	err := s.wal.Iterate(1, func(rec *types.Record) error {
		if err := latest.Apply(rec); err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}
		tree.Append(rec.Hash)
		chain = integrity.ChainHash(chain, rec.Hash)
		return nil
	})
	if err != nil {
		return err
	}

	text := textindex.NewIndex()
	var vectors *vector.Index
	dim := embedding.Dim()
	if dim > 0 {
		vectors = vector.NewIndex(dim)
	} else {
		s.logger.Warn().Msg("embedding provider not configured; semantic search disabled")
	}

	var embedErr error
	latest.IterateLive(func(m *types.Memory) bool {
		text.Put(textDoc(m))
		if vectors != nil {
			v, err := embedding.Embed(context.Background(), m.Content)
			if err != nil {
				embedErr = fmt.Errorf("failed to embed memory %s: %w", m.ID, err)
				return false
			}
			if err := vectors.Put(m.ID, v); err != nil {
				embedErr = err
				return false
			}
		}
		return true
	})
	if embedErr != nil {
		return embedErr
	}

	s.latest = latest
	s.text = text
	s.vectors = vectors
	s.tree = tree
	s.chain = chain
	return nil
}

// textDoc projects a memory into its indexable fields.
func textDoc(m *types.Memory) textindex.Document {
	return textindex.Document{
		ID:       m.ID,
		Content:  m.Content,
		Category: m.Category,
		Type:     m.Type,
		Tags:     m.Tags,
		Context:  m.Context,
	}
}

// Meta returns the store's durable metadata.
func (s *Store) Meta() *types.StoreMeta {
	return s.meta
}

// ID returns the store id.
func (s *Store) ID() string {
	return s.meta.StoreID
}

// Log exposes the store's WAL for fork overlay wiring and verification.
func (s *Store) Log() *wal.Log {
	return s.wal
}

// Close releases the WAL tail and sidecar handles.
func (s *Store) Close() error {
	var first error
	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			first = err
		}
	}
	if s.side != nil {
		if err := s.side.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats summarizes the store.
func (s *Store) Stats() *types.StoreStats {
	return &types.StoreStats{
		StoreID:        s.meta.StoreID,
		Memories:       s.latest.CountLive(),
		Relationships:  s.latest.CountRelationships(),
		Tombstones:     s.latest.CountTombstones(),
		WALRecords:     s.wal.RecordCount(),
		SealedSegments: s.wal.SegmentCount(),
		MerkleRoot:     s.tree.Root(),
		ChainHash:      s.chain,
	}
}

// Verify streams the store's persisted history and recomputes every
// content hash, the chain, and the Merkle root.
func (s *Store) Verify() *types.IntegrityReport {
	return s.wal.Verify()
}

// RebuildIndexes discards and reconstructs every derived structure from
// the WAL. This is the explicit recovery command after a reported
// integrity failure was resolved.
func (s *Store) RebuildIndexes() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.rebuild(); err != nil {
		return err
	}
	s.publish(events.EventIndexesRebuilt, "", 0, "indexes rebuilt from wal")
	return nil
}

// SealTail seals the open WAL tail under the write lock. Fork creation
// goes through ForkCut, which seals the same way and captures the cut.
func (s *Store) SealTail() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.wal.SealTail()
}

// ForkCut seals the tail and returns the current cut point under the
// write lock, so no concurrent mutation can land between the seal and
// the capture.
func (s *Store) ForkCut() (seq uint64, hash types.Hash, ts int64, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.wal.SealTail(); err != nil {
		return 0, types.ZeroHash, 0, err
	}
	return s.wal.RecordCount(), s.wal.LastHash(), s.wal.LastTimestamp(), nil
}

// CompactSealed merges small adjacent sealed segments.
func (s *Store) CompactSealed() error {
	return s.wal.CompactSealed()
}

// publish emits an engine event correlated to the WAL record that
// caused it; walSeq is zero for maintenance events with no record.
func (s *Store) publish(t events.EventType, entityID string, walSeq uint64, msg string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:     t,
		StoreID:  s.meta.StoreID,
		EntityID: entityID,
		WALSeq:   walSeq,
		Message:  msg,
	})
}
