package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// snapshotCatalog is one store's snapshots.json.
type snapshotCatalog struct {
	Snapshots []*types.Snapshot `json:"snapshots"`
}

func (r *Registry) catalogPath(storeID string) string {
	return filepath.Join(r.storeDir(storeID), "snapshots.json")
}

func (r *Registry) loadCatalog(storeID string) (*snapshotCatalog, error) {
	data, err := os.ReadFile(r.catalogPath(storeID))
	if os.IsNotExist(err) {
		return &snapshotCatalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot catalog: %w", err)
	}
	var cat snapshotCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot catalog: %w", err)
	}
	return &cat, nil
}

func (r *Registry) saveCatalog(storeID string, cat *snapshotCatalog) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot catalog: %w", err)
	}
	path := r.catalogPath(storeID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish snapshot catalog: %w", err)
	}
	return nil
}

// Snapshot captures a store's current Merkle root and WAL position under
// a name. Repeated names are allowed; each capture gets its own id. A
// marker record is appended afterwards so the capture is anchored in
// history.
func (r *Registry) Snapshot(storeID, name string) (*types.Snapshot, error) {
	st, err := r.Get(storeID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errdefs.InvalidArgf("snapshot name is required")
	}

	stats := st.Stats()
	snap := &types.Snapshot{
		ID:         uuid.New().String(),
		Name:       name,
		StoreID:    storeID,
		MerkleRoot: stats.MerkleRoot,
		Seq:        stats.WALRecords,
		CreatedAt:  types.NowMillis(),
	}

	cat, err := r.loadCatalog(storeID)
	if err != nil {
		return nil, err
	}
	cat.Snapshots = append(cat.Snapshots, snap)
	if err := r.saveCatalog(storeID, cat); err != nil {
		return nil, err
	}

	if err := st.AppendSnapshotMarker(snap.ID, name); err != nil {
		r.logger.Warn().Err(err).Str("snapshot", snap.ID).Msg("failed to append snapshot marker")
	}

	metrics.SnapshotsTotal.Inc()
	if r.broker != nil {
		r.broker.Publish(&events.Event{
			Type:     events.EventSnapshotCreated,
			StoreID:  storeID,
			EntityID: snap.ID,
			Message:  fmt.Sprintf("snapshot %q captured at sequence %d", name, snap.Seq),
		})
	}
	return snap, nil
}

// ListSnapshots returns a store's snapshot catalog.
func (r *Registry) ListSnapshots(storeID string) ([]*types.Snapshot, error) {
	if _, err := r.Get(storeID); err != nil {
		return nil, err
	}
	cat, err := r.loadCatalog(storeID)
	if err != nil {
		return nil, err
	}
	return cat.Snapshots, nil
}

// FindSnapshot resolves a snapshot id across every store's catalog.
func (r *Registry) FindSnapshot(snapID string) (*types.Snapshot, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		cat, err := r.loadCatalog(id)
		if err != nil {
			return nil, err
		}
		for _, snap := range cat.Snapshots {
			if snap.ID == snapID {
				return snap, nil
			}
		}
	}
	return nil, errdefs.NotFoundf("snapshot %s", snapID)
}

// RestoreSnapshot materializes a snapshot as a new fork of its owning
// store at the captured sequence. The source store is never mutated.
func (r *Registry) RestoreSnapshot(snapID, newName string) (*types.StoreMeta, error) {
	snap, err := r.FindSnapshot(snapID)
	if err != nil {
		return nil, err
	}
	source, err := r.Get(snap.StoreID)
	if err != nil {
		return nil, err
	}
	note := fmt.Sprintf("restored from snapshot %q", snap.Name)
	return r.forkAtSeq(source, snap.Seq, newName, note)
}
