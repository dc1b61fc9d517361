package index

import (
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/types"
)

// Entry is the descriptor the latest-version index keeps per entity id.
type Entry struct {
	Version uint64
	Hash    types.Hash
	Seq     uint64
	Deleted bool

	// Exactly one payload is cached, matching the record kind.
	Memory       *types.Memory
	Relationship *types.Relationship
}

// Latest maps every entity id to its currently-live version, maintains
// the insertion-order list used for deterministic pagination, inverted
// lists for category/type/tag filtering, and relationship adjacency.
// It is rebuilt by replaying the WAL and mutated only through Apply.
//
// Readers take short read locks; the owning store serializes writers, so
// a read that observes version V observes all earlier index effects.
type Latest struct {
	mu sync.RWMutex

	memories      map[string]*Entry
	relationships map[string]*Entry

	order []string // memory ids in first-insertion order

	byCategory map[string]map[string]struct{}
	byType     map[string]map[string]struct{}
	byTag      map[string]map[string]struct{}

	outgoing map[string][]*types.Relationship
	incoming map[string][]*types.Relationship
	pairs    map[string]string // "from\x00to" -> live relationship id

	tombstones uint64
}

// NewLatest returns an empty index.
func NewLatest() *Latest {
	return &Latest{
		memories:      make(map[string]*Entry),
		relationships: make(map[string]*Entry),
		byCategory:    make(map[string]map[string]struct{}),
		byType:        make(map[string]map[string]struct{}),
		byTag:         make(map[string]map[string]struct{}),
		outgoing:      make(map[string][]*types.Relationship),
		incoming:      make(map[string][]*types.Relationship),
		pairs:         make(map[string]string),
	}
}

func pairKey(from, to string) string {
	return from + "\x00" + to
}

// Apply folds one WAL record into the index. Records must arrive in log
// order; a version that does not advance its entity by exactly one is a
// corruption of the replay stream and is rejected.
func (l *Latest) Apply(rec *types.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch rec.Kind {
	case types.KindMemory:
		return l.applyMemory(rec)
	case types.KindRelationship:
		return l.applyRelationship(rec)
	case types.KindSnapshotMarker:
		// Markers anchor snapshots in history; they index nothing.
		return nil
	}
	return fmt.Errorf("unknown record kind %d at seq %d", rec.Kind, rec.Seq)
}

func (l *Latest) applyMemory(rec *types.Record) error {
	m := rec.Memory
	prev, exists := l.memories[m.ID]
	switch {
	case !exists && m.Version != 1:
		return fmt.Errorf("memory %s enters at version %d, want 1", m.ID, m.Version)
	case exists && m.Version != prev.Version+1:
		return fmt.Errorf("memory %s version %d does not follow %d", m.ID, m.Version, prev.Version)
	}

	if exists {
		l.unindexMemory(prev.Memory)
		if prev.Deleted && !rec.Deleted {
			l.tombstones--
		}
	} else {
		l.order = append(l.order, m.ID)
	}
	if rec.Deleted && (!exists || !prev.Deleted) {
		l.tombstones++
	}

	entry := &Entry{
		Version: m.Version,
		Hash:    rec.Hash,
		Seq:     rec.Seq,
		Deleted: rec.Deleted,
		Memory:  m,
	}
	l.memories[m.ID] = entry
	if !rec.Deleted {
		l.indexMemory(m)
	}
	return nil
}

func (l *Latest) applyRelationship(rec *types.Record) error {
	r := rec.Relationship
	prev, exists := l.relationships[r.ID]
	switch {
	case !exists && r.Version != 1:
		return fmt.Errorf("relationship %s enters at version %d, want 1", r.ID, r.Version)
	case exists && r.Version != prev.Version+1:
		return fmt.Errorf("relationship %s version %d does not follow %d", r.ID, r.Version, prev.Version)
	}

	if exists && !prev.Deleted {
		l.unlink(prev.Relationship)
	}
	l.relationships[r.ID] = &Entry{
		Version:      r.Version,
		Hash:         rec.Hash,
		Seq:          rec.Seq,
		Deleted:      rec.Deleted,
		Relationship: r,
	}
	if !rec.Deleted {
		l.outgoing[r.FromID] = append(l.outgoing[r.FromID], r)
		l.incoming[r.ToID] = append(l.incoming[r.ToID], r)
		l.pairs[pairKey(r.FromID, r.ToID)] = r.ID
	}
	return nil
}

func (l *Latest) indexMemory(m *types.Memory) {
	addTo := func(idx map[string]map[string]struct{}, key string) {
		if key == "" {
			return
		}
		set, ok := idx[key]
		if !ok {
			set = make(map[string]struct{})
			idx[key] = set
		}
		set[m.ID] = struct{}{}
	}
	addTo(l.byCategory, m.Category)
	addTo(l.byType, m.Type)
	for _, t := range m.Tags {
		addTo(l.byTag, t)
	}
}

func (l *Latest) unindexMemory(m *types.Memory) {
	dropFrom := func(idx map[string]map[string]struct{}, key string) {
		if set, ok := idx[key]; ok {
			delete(set, m.ID)
			if len(set) == 0 {
				delete(idx, key)
			}
		}
	}
	dropFrom(l.byCategory, m.Category)
	dropFrom(l.byType, m.Type)
	for _, t := range m.Tags {
		dropFrom(l.byTag, t)
	}
}

func (l *Latest) unlink(r *types.Relationship) {
	remove := func(edges []*types.Relationship) []*types.Relationship {
		for i, e := range edges {
			if e.ID == r.ID {
				return append(edges[:i], edges[i+1:]...)
			}
		}
		return edges
	}
	l.outgoing[r.FromID] = remove(l.outgoing[r.FromID])
	l.incoming[r.ToID] = remove(l.incoming[r.ToID])
	delete(l.pairs, pairKey(r.FromID, r.ToID))
}

// Get returns the live memory for id, or nil when absent or tombstoned.
func (l *Latest) Get(id string) *types.Memory {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.memories[id]
	if !ok || entry.Deleted {
		return nil
	}
	return entry.Memory.Clone()
}

// GetEntry returns the descriptor for id including tombstones.
func (l *Latest) GetEntry(id string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.memories[id]
	return entry, ok
}

// NextVersion returns the version the next mutation of the memory id must
// carry: 1 for a new entity, latest+1 otherwise.
func (l *Latest) NextVersion(id string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if entry, ok := l.memories[id]; ok {
		return entry.Version + 1
	}
	return 1
}

// NextRelationshipVersion is NextVersion for relationship ids.
func (l *Latest) NextRelationshipVersion(id string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if entry, ok := l.relationships[id]; ok {
		return entry.Version + 1
	}
	return 1
}

// IterateLive visits live memories in insertion order.
func (l *Latest) IterateLive(fn func(*types.Memory) bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, id := range l.order {
		entry := l.memories[id]
		if entry.Deleted {
			continue
		}
		if !fn(entry.Memory) {
			return
		}
	}
}

// IterateAll visits every memory entry, tombstoned included, in insertion
// order.
func (l *Latest) IterateAll(fn func(*Entry) bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, id := range l.order {
		if !fn(l.memories[id]) {
			return
		}
	}
}

// idsFor returns the live memory ids stored under key in a category, type,
// or tag posting map, or nil when the key is absent.
func (l *Latest) idsFor(idx map[string]map[string]struct{}, key string) map[string]struct{} {
	set, ok := idx[key]
	if !ok {
		return nil
	}
	return set
}

// MatchesFilter reports whether a live memory id satisfies the optional
// category/type/tag constraints.
func (l *Latest) MatchesFilter(id, category, typ, tag string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	contains := func(idx map[string]map[string]struct{}, key string) bool {
		set := l.idsFor(idx, key)
		if set == nil {
			return false
		}
		_, ok := set[id]
		return ok
	}
	if category != "" && !contains(l.byCategory, category) {
		return false
	}
	if typ != "" && !contains(l.byType, typ) {
		return false
	}
	if tag != "" && !contains(l.byTag, tag) {
		return false
	}
	return true
}

// Relationship returns the live relationship for id, or nil.
func (l *Latest) Relationship(id string) *types.Relationship {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.relationships[id]
	if !ok || entry.Deleted {
		return nil
	}
	return entry.Relationship
}

// LivePair returns the id of the live relationship for the ordered
// (from, to) pair, if one exists.
func (l *Latest) LivePair(from, to string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.pairs[pairKey(from, to)]
	return id, ok
}

// Adjacency returns copies of the live outgoing and incoming edges of a
// memory id.
func (l *Latest) Adjacency(id string) (out, in []*types.Relationship) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out = append(out, l.outgoing[id]...)
	in = append(in, l.incoming[id]...)
	return out, in
}

// CountLive returns the number of live (non-tombstoned) memories.
func (l *Latest) CountLive() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.memories)) - l.tombstones
}

// CountTombstones returns the number of tombstoned memories.
func (l *Latest) CountTombstones() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tombstones
}

// CountRelationships returns the number of live relationships.
func (l *Latest) CountRelationships() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.pairs))
}
