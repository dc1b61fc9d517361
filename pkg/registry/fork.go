package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// Fork creates a new store whose visible history is the source's full
// current history. The cut is O(1): the fork reads the source's records
// through a log overlay instead of copying them.
func (r *Registry) Fork(sourceID, name, note string) (*types.StoreMeta, error) {
	source, err := r.Get(sourceID)
	if err != nil {
		return nil, err
	}

	// Seal so the cut lands entirely in immutable segment files; the
	// source's write lock is held just long enough to capture the cut.
	seq, hash, ts, err := source.ForkCut()
	if err != nil {
		return nil, fmt.Errorf("failed to capture fork cut: %w", err)
	}
	return r.createFork(source, seq, hash, ts, name, note)
}

// ForkAt creates a point-in-time fork: the new store sees exactly the
// source records whose timestamp is <= at.
func (r *Registry) ForkAt(sourceID, name, note string, at time.Time) (*types.StoreMeta, error) {
	source, err := r.Get(sourceID)
	if err != nil {
		return nil, err
	}
	seq, hash, ts, err := source.Log().ForkPoint(at.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to locate fork point: %w", err)
	}
	if ts == 0 {
		ts = at.UnixMilli()
	}
	return r.createFork(source, seq, hash, ts, name, note)
}

// forkAtSeq restores a snapshot by forking its owning store at the
// snapshot's recorded sequence.
func (r *Registry) forkAtSeq(source *store.Store, seq uint64, name, note string) (*types.StoreMeta, error) {
	if seq == 0 {
		return r.createFork(source, 0, types.ZeroHash, types.NowMillis(), name, note)
	}
	hash, ts, err := source.Log().HashAt(seq)
	if err != nil {
		return nil, err
	}
	return r.createFork(source, seq, hash, ts, name, note)
}

func (r *Registry) createFork(source *store.Store, seq uint64, hash types.Hash, ts int64, name, note string) (*types.StoreMeta, error) {
	meta := &types.StoreMeta{
		StoreID:       uuid.New().String(),
		Name:          name,
		Note:          note,
		SourceID:      source.ID(),
		ForkSeq:       seq,
		ForkTimestamp: ts,
		ForkPrevHash:  hash,
		CreatedAt:     types.NowMillis(),
	}
	if err := r.writeMeta(meta); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openStore(meta); err != nil {
		os.RemoveAll(r.storeDir(meta.StoreID))
		return nil, err
	}

	metrics.ForksTotal.Inc()
	metrics.StoresTotal.Set(float64(len(r.stores)))
	if r.broker != nil {
		r.broker.Publish(&events.Event{
			Type:     events.EventStoreForked,
			StoreID:  source.ID(),
			EntityID: meta.StoreID,
			Message:  fmt.Sprintf("forked at sequence %d", seq),
		})
	}
	r.logger.Info().
		Str("source", source.ID()).
		Str("fork", meta.StoreID).
		Uint64("fork_seq", seq).
		Msg("fork created")
	return meta, nil
}

// DeleteFork removes a fork's directory, WAL, segments, and indexes. The
// source is never touched; "main" and stores with live forks of their
// own are protected.
func (r *Registry) DeleteFork(id string) error {
	if id == types.MainStoreID {
		return errdefs.Forbiddenf("main store cannot be deleted")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[id]
	if !ok {
		return errdefs.NotFoundf("store %s", id)
	}
	for _, other := range r.stores {
		if other.Meta().SourceID == id {
			return errdefs.Conflictf("store %s is the source of fork %s", id, other.ID())
		}
	}

	if err := st.Close(); err != nil {
		r.logger.Warn().Err(err).Str("store_id", id).Msg("error closing fork before delete")
	}
	delete(r.stores, id)
	if err := os.RemoveAll(r.storeDir(id)); err != nil {
		return fmt.Errorf("failed to remove fork directory: %w", err)
	}

	metrics.StoresTotal.Set(float64(len(r.stores)))
	if r.broker != nil {
		r.broker.Publish(&events.Event{
			Type:    events.EventStoreDeleted,
			StoreID: id,
			Message: "fork deleted",
		})
	}
	r.logger.Info().Str("store_id", id).Msg("fork deleted")
	return nil
}
