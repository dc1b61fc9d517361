package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// Options configures the registry.
type Options struct {
	DataDir string
	Broker  *events.Broker

	SealRecords int
	SealBytes   int64
}

// Registry owns every open store, the fork graph, and the snapshot
// catalogs, and routes operations by store id. The reserved "main" store
// is created at bootstrap when the data directory holds no main manifest.
type Registry struct {
	mu     sync.RWMutex
	opts   Options
	logger zerolog.Logger
	broker *events.Broker

	stores map[string]*store.Store
}

// Open loads every store under the data directory, sources before forks,
// creating "main" if it does not exist yet.
func Open(opts Options) (*Registry, error) {
	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}
	if err := os.MkdirAll(opts.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	r := &Registry{
		opts:   opts,
		logger: log.WithComponent("registry"),
		broker: opts.Broker,
		stores: make(map[string]*store.Store),
	}

	metas, err := r.scanMetas()
	if err != nil {
		return nil, err
	}
	if _, ok := metas[types.MainStoreID]; !ok {
		meta := &types.StoreMeta{
			StoreID:   types.MainStoreID,
			CreatedAt: types.NowMillis(),
		}
		if err := r.writeMeta(meta); err != nil {
			return nil, err
		}
		metas[types.MainStoreID] = meta
		r.logger.Info().Msg("bootstrapped main store")
	}

	// Open in dependency order: a fork needs its source's log for the
	// overlay, so sources come first.
	opened := make(map[string]bool)
	for len(opened) < len(metas) {
		progressed := false
		for id, meta := range metas {
			if opened[id] {
				continue
			}
			if meta.IsFork() && !opened[meta.SourceID] {
				if _, exists := metas[meta.SourceID]; !exists {
					return nil, fmt.Errorf("store %s references missing source %s", id, meta.SourceID)
				}
				continue
			}
			if err := r.openStore(meta); err != nil {
				r.closeAll()
				return nil, err
			}
			opened[id] = true
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("fork graph contains a cycle")
		}
	}

	metrics.StoresTotal.Set(float64(len(r.stores)))
	return r, nil
}

// scanMetas reads every manifest.json under the data directory.
func (r *Registry) scanMetas() (map[string]*types.StoreMeta, error) {
	entries, err := os.ReadDir(r.opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan data directory: %w", err)
	}
	metas := make(map[string]*types.StoreMeta)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(r.opts.DataDir, entry.Name(), "manifest.json")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var meta types.StoreMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		metas[meta.StoreID] = &meta
	}
	return metas, nil
}

func (r *Registry) storeDir(id string) string {
	return filepath.Join(r.opts.DataDir, id)
}

// writeMeta persists a store manifest atomically.
func (r *Registry) writeMeta(meta *types.StoreMeta) error {
	dir := r.storeDir(meta.StoreID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, "manifest.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish manifest: %w", err)
	}
	return nil
}

// openStore opens a store whose source (if any) is already open.
func (r *Registry) openStore(meta *types.StoreMeta) error {
	opts := store.Options{
		Dir:         r.storeDir(meta.StoreID),
		Meta:        meta,
		Broker:      r.broker,
		SealRecords: r.opts.SealRecords,
		SealBytes:   r.opts.SealBytes,
	}
	if meta.IsFork() {
		source, ok := r.stores[meta.SourceID]
		if !ok {
			return fmt.Errorf("source store %s not open", meta.SourceID)
		}
		opts.Base = source.Log()
	}
	st, err := store.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", meta.StoreID, err)
	}
	r.stores[meta.StoreID] = st
	return nil
}

// Get resolves a store by id.
func (r *Registry) Get(id string) (*store.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stores[id]
	if !ok {
		return nil, errdefs.NotFoundf("store %s", id)
	}
	return st, nil
}

// Main returns the bootstrap store.
func (r *Registry) Main() *store.Store {
	st, _ := r.Get(types.MainStoreID)
	return st
}

// ListStores returns every store's metadata, main first, then forks by
// creation time.
func (r *Registry) ListStores() []*types.StoreMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.StoreMeta, 0, len(r.stores))
	for _, st := range r.stores {
		out = append(out, st.Meta())
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].StoreID == types.MainStoreID) != (out[j].StoreID == types.MainStoreID) {
			return out[i].StoreID == types.MainStoreID
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].StoreID < out[j].StoreID
	})
	return out
}

// VerifyIntegrity streams a store's history and recomputes its hashes.
func (r *Registry) VerifyIntegrity(id string) (*types.IntegrityReport, error) {
	st, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	report := st.Verify()
	outcome := "valid"
	if !report.Valid {
		outcome = "invalid"
	}
	metrics.IntegrityChecks.WithLabelValues(outcome).Inc()
	return report, nil
}

// RebuildIndexes reconstructs a store's derived state from its WAL.
func (r *Registry) RebuildIndexes(id string) error {
	st, err := r.Get(id)
	if err != nil {
		return err
	}
	return st.RebuildIndexes()
}

// Stats summarizes a store and refreshes its gauges.
func (r *Registry) Stats(id string) (*types.StoreStats, error) {
	st, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	stats := st.Stats()
	metrics.MemoriesTotal.WithLabelValues(id).Set(float64(stats.Memories))
	metrics.RelationshipsTotal.WithLabelValues(id).Set(float64(stats.Relationships))
	return stats, nil
}

// CompactAll merges small sealed segments in every store. Intended for
// the background compactor; safe to call at any time.
func (r *Registry) CompactAll() {
	r.mu.RLock()
	stores := make([]*store.Store, 0, len(r.stores))
	for _, st := range r.stores {
		stores = append(stores, st)
	}
	r.mu.RUnlock()

	for _, st := range stores {
		if err := st.CompactSealed(); err != nil {
			r.logger.Warn().Err(err).Str("store_id", st.ID()).Msg("compaction failed")
		}
	}
}

// StartCompactor runs CompactAll on the given interval until stop is
// closed. The registry is the only writer of segment manifests outside
// tail seals.
func (r *Registry) StartCompactor(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.CompactAll()
			case <-stop:
				return
			}
		}
	}()
}

// Close shuts every store down, forks before their sources so overlay
// reads never hit a closed log.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

func (r *Registry) closeAll() error {
	// Count dependents to close leaves first.
	deps := make(map[string]int)
	for _, st := range r.stores {
		if src := st.Meta().SourceID; src != "" {
			deps[src]++
		}
	}
	var firstErr error
	for len(r.stores) > 0 {
		progressed := false
		for id, st := range r.stores {
			if deps[id] > 0 {
				continue
			}
			if err := st.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			if src := st.Meta().SourceID; src != "" {
				deps[src]--
			}
			delete(r.stores, id)
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return firstErr
}
