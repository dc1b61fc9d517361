package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/cadence"
	"github.com/cuemby/burrow/pkg/embedding"
	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/integrity"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// AddMemoryParams carries the caller-supplied fields of a new memory.
type AddMemoryParams struct {
	Category     string
	Type         string
	Content      string
	Tags         []string
	Importance   int
	CadenceKind  types.CadenceKind
	CadenceValue int
	Context      string
}

// UpdateMemoryParams updates any subset of mutable fields; nil pointers
// leave the current value untouched.
type UpdateMemoryParams struct {
	Category     *string
	Type         *string
	Content      *string
	Tags         *[]string
	Importance   *int
	CadenceKind  *types.CadenceKind
	CadenceValue *int
	Context      *string
	Archived     *bool
}

// AddMemory validates, embeds, and appends a version-1 memory record.
func (s *Store) AddMemory(ctx context.Context, p AddMemoryParams) (*types.Memory, error) {
	if strings.TrimSpace(p.Category) == "" {
		return nil, errdefs.InvalidArgf("category is required")
	}
	if strings.TrimSpace(p.Type) == "" {
		return nil, errdefs.InvalidArgf("type is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, errdefs.InvalidArgf("content is required")
	}
	if p.Importance == 0 {
		p.Importance = types.DefaultImportance
	}
	if p.Importance < 1 || p.Importance > 10 {
		return nil, errdefs.InvalidArgf("importance %d, want 1..10", p.Importance)
	}
	if err := cadence.Validate(p.CadenceKind, p.CadenceValue); err != nil {
		return nil, err
	}

	// Suspension point: embedding runs before the write lock so a slow or
	// failing provider cannot stall other writers.
	vec, err := s.embedFor(ctx, p.Content)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.clock()
	m := &types.Memory{
		ID:           uuid.New().String(),
		Version:      1,
		Category:     p.Category,
		Type:         p.Type,
		Content:      p.Content,
		Tags:         p.Tags,
		Importance:   p.Importance,
		CadenceKind:  p.CadenceKind,
		CadenceValue: p.CadenceValue,
		Context:      p.Context,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	rec := &types.Record{Kind: types.KindMemory, Timestamp: now, Memory: m}
	if err := s.appendRecord(rec, vec); err != nil {
		return nil, err
	}
	s.publish(events.EventMemoryCreated, m.ID, rec.Seq, "memory created")
	return m.Clone(), nil
}

// UpdateMemory appends a new version with the given field changes.
func (s *Store) UpdateMemory(ctx context.Context, id string, p UpdateMemoryParams) (*types.Memory, error) {
	current := s.latest.Get(id)
	if current == nil {
		return nil, errdefs.NotFoundf("memory %s", id)
	}

	next := current.Clone()
	if p.Category != nil {
		if strings.TrimSpace(*p.Category) == "" {
			return nil, errdefs.InvalidArgf("category cannot be empty")
		}
		next.Category = *p.Category
	}
	if p.Type != nil {
		if strings.TrimSpace(*p.Type) == "" {
			return nil, errdefs.InvalidArgf("type cannot be empty")
		}
		next.Type = *p.Type
	}
	if p.Content != nil {
		if strings.TrimSpace(*p.Content) == "" {
			return nil, errdefs.InvalidArgf("content cannot be empty")
		}
		next.Content = *p.Content
	}
	if p.Tags != nil {
		next.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Importance != nil {
		if *p.Importance < 1 || *p.Importance > 10 {
			return nil, errdefs.InvalidArgf("importance %d, want 1..10", *p.Importance)
		}
		next.Importance = *p.Importance
	}
	if p.CadenceKind != nil {
		next.CadenceKind = *p.CadenceKind
	}
	if p.CadenceValue != nil {
		next.CadenceValue = *p.CadenceValue
	}
	if err := cadence.Validate(next.CadenceKind, next.CadenceValue); err != nil {
		return nil, err
	}
	if p.Context != nil {
		next.Context = *p.Context
	}
	if p.Archived != nil {
		next.Archived = *p.Archived
	}

	var vec []float32
	if p.Content != nil {
		var err error
		if vec, err = s.embedFor(ctx, next.Content); err != nil {
			return nil, err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Re-read under the lock: a concurrent writer may have advanced or
	// tombstoned the entity since validation.
	if s.latest.Get(id) == nil {
		return nil, errdefs.NotFoundf("memory %s", id)
	}
	now := s.clock()
	next.Version = s.latest.NextVersion(id)
	next.UpdatedAt = now
	next.LastAccessed = 0

	rec := &types.Record{Kind: types.KindMemory, Timestamp: now, Memory: next}
	if err := s.appendRecord(rec, vec); err != nil {
		return nil, err
	}
	s.publish(events.EventMemoryUpdated, id, rec.Seq, "memory updated")
	return next.Clone(), nil
}

// DeleteMemory appends a tombstone version. Deleting an absent or
// already-deleted id returns false, not an error.
func (s *Store) DeleteMemory(id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.latest.Get(id)
	if current == nil {
		return false, nil
	}
	now := s.clock()
	tomb := current.Clone()
	tomb.Version = s.latest.NextVersion(id)
	tomb.UpdatedAt = now
	tomb.LastAccessed = 0

	rec := &types.Record{Kind: types.KindMemory, Timestamp: now, Deleted: true, Memory: tomb}
	if err := s.appendRecord(rec, nil); err != nil {
		return false, err
	}
	s.publish(events.EventMemoryDeleted, id, rec.Seq, "memory deleted")
	return true, nil
}

// AddRelationship appends a version-1 relationship record for the ordered
// (from, to) pair.
func (s *Store) AddRelationship(fromID, toID string, kind types.RelationshipKind) (*types.Relationship, error) {
	if !types.ValidRelationshipKind(kind) {
		return nil, errdefs.InvalidArgf("unknown relationship kind %q", kind)
	}
	if fromID == toID {
		return nil, errdefs.InvalidArgf("relationship cannot link a memory to itself")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.latest.Get(fromID) == nil {
		return nil, errdefs.NotFoundf("memory %s", fromID)
	}
	if s.latest.Get(toID) == nil {
		return nil, errdefs.NotFoundf("memory %s", toID)
	}
	if _, exists := s.latest.LivePair(fromID, toID); exists {
		return nil, errdefs.Conflictf("relationship %s -> %s already exists", fromID, toID)
	}

	now := s.clock()
	rel := &types.Relationship{
		ID:        uuid.New().String(),
		Version:   1,
		FromID:    fromID,
		ToID:      toID,
		Kind:      kind,
		CreatedAt: now,
	}
	rec := &types.Record{Kind: types.KindRelationship, Timestamp: now, Relationship: rel}
	if err := s.appendRecord(rec, nil); err != nil {
		return nil, err
	}
	s.publish(events.EventRelationshipCreated, rel.ID, rec.Seq, "relationship created")
	out := *rel
	return &out, nil
}

// DeleteRelationship tombstones a relationship by id. Idempotent.
func (s *Store) DeleteRelationship(id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rel := s.latest.Relationship(id)
	if rel == nil {
		return false, nil
	}
	now := s.clock()
	tomb := *rel
	tomb.Version = s.latest.NextRelationshipVersion(id)

	rec := &types.Record{Kind: types.KindRelationship, Timestamp: now, Deleted: true, Relationship: &tomb}
	if err := s.appendRecord(rec, nil); err != nil {
		return false, err
	}
	s.publish(events.EventRelationshipDeleted, id, rec.Seq, "relationship deleted")
	return true, nil
}

// AppendSnapshotMarker anchors a snapshot in the WAL. Called by the
// registry with the store's catalog entry.
func (s *Store) AppendSnapshotMarker(snapID, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.clock()
	rec := &types.Record{
		Kind:      types.KindSnapshotMarker,
		Timestamp: now,
		Marker:    &types.SnapshotMarker{SnapshotID: snapID, Name: name},
	}
	return s.appendRecord(rec, nil)
}

// clock returns the mutation timestamp: wall clock, clamped to never run
// behind the log so timestamp-bounded iteration stays monotonic.
func (s *Store) clock() int64 {
	now := types.NowMillis()
	if last := s.wal.LastTimestamp(); last > now {
		now = last
	}
	return now
}

// embedFor produces the embedding for new content, or nil when semantic
// search is disabled (no provider configured).
func (s *Store) embedFor(ctx context.Context, content string) ([]float32, error) {
	if s.vectors == nil {
		return nil, nil
	}
	return embedding.Embed(ctx, content)
}

// appendRecord is the single mutation path. The caller holds writeMu and
// has filled kind, timestamp, payload, and deleted flag; this completes
// the integrity header, commits to the WAL, then folds the record into
// every derived structure.
//
// A WAL failure aborts cleanly: nothing was applied. A failure applying
// an already-committed record is a bug, not an I/O condition — the store
// panics so the process reopens and replays from the log.
func (s *Store) appendRecord(rec *types.Record, vec []float32) error {
	rec.Seq = s.wal.NextSeq()
	rec.PrevHash = s.wal.LastHash()
	rec.StoreID = s.meta.StoreID

	hash, err := integrity.ContentHash(rec)
	if err != nil {
		return err
	}
	rec.Hash = hash

	if _, err := s.wal.Append(rec); err != nil {
		metrics.WALAppendErrors.WithLabelValues(s.meta.StoreID).Inc()
		return err
	}

	if err := s.latest.Apply(rec); err != nil {
		panic(fmt.Sprintf("store %s: committed record %d failed to apply: %v", s.meta.StoreID, rec.Seq, err))
	}
	s.tree.Append(rec.Hash)
	s.chain = integrity.ChainHash(s.chain, rec.Hash)

	if rec.Kind == types.KindMemory {
		m := rec.Memory
		if rec.Deleted {
			s.text.Remove(m.ID)
			if s.vectors != nil {
				s.vectors.Remove(m.ID)
			}
		} else {
			s.text.Put(textDoc(m))
			if s.vectors != nil && vec != nil {
				if err := s.vectors.Put(m.ID, vec); err != nil {
					panic(fmt.Sprintf("store %s: committed record %d failed to index: %v", s.meta.StoreID, rec.Seq, err))
				}
			}
		}
	}

	metrics.WALAppendsTotal.WithLabelValues(s.meta.StoreID, kindLabel(rec.Kind)).Inc()
	return nil
}

func kindLabel(k types.RecordKind) string {
	switch k {
	case types.KindMemory:
		return "memory"
	case types.KindRelationship:
		return "relationship"
	case types.KindSnapshotMarker:
		return "snapshot_marker"
	}
	return "unknown"
}
