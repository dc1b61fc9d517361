package store

import (
	"sort"
	"time"

	"github.com/cuemby/burrow/pkg/cadence"
	"github.com/cuemby/burrow/pkg/index"
	"github.com/cuemby/burrow/pkg/types"
)

// ListFilter narrows ListMemories.
type ListFilter struct {
	Category        string
	Type            string
	Tag             string
	IncludeArchived bool
}

// GetMemory returns the live memory for id, or nil when absent or
// tombstoned. When touch is set the read is recorded in the sidecar as
// the memory's last-accessed time.
func (s *Store) GetMemory(id string, touch bool) (*types.Memory, error) {
	m := s.latest.Get(id)
	if m == nil {
		return nil, nil
	}
	m.LastAccessed = s.side.lastAccessed(id)
	if touch {
		now := types.NowMillis()
		if err := s.side.touch(id, now); err != nil {
			// The read itself succeeded; losing an access timestamp is
			// not worth failing it.
			s.logger.Warn().Err(err).Str("memory_id", id).Msg("failed to record access time")
		} else {
			m.LastAccessed = now
		}
	}
	return m, nil
}

// ListMemories returns memories in insertion order, filtered and
// paginated. By default tombstoned and archived memories are skipped;
// IncludeArchived surfaces both, with tombstones flagged.
func (s *Store) ListMemories(filter ListFilter, limit, offset int) []*types.Memory {
	hasTag := func(tags []string, tag string) bool {
		for _, t := range tags {
			if t == tag {
				return true
			}
		}
		return false
	}
	matches := func(entry *index.Entry) bool {
		m := entry.Memory
		if entry.Deleted {
			// Tombstones are outside the inverted lists; compare fields.
			if filter.Category != "" && m.Category != filter.Category {
				return false
			}
			if filter.Type != "" && m.Type != filter.Type {
				return false
			}
			if filter.Tag != "" && !hasTag(m.Tags, filter.Tag) {
				return false
			}
			return true
		}
		if filter.Category == "" && filter.Type == "" && filter.Tag == "" {
			return true
		}
		return s.latest.MatchesFilter(m.ID, filter.Category, filter.Type, filter.Tag)
	}

	var out []*types.Memory
	skipped := 0
	s.latest.IterateAll(func(entry *index.Entry) bool {
		m := entry.Memory
		if !filter.IncludeArchived && (entry.Deleted || m.Archived) {
			return true
		}
		if !matches(entry) {
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		if limit > 0 && len(out) >= limit {
			return false
		}
		mm := m.Clone()
		mm.Deleted = entry.Deleted
		mm.LastAccessed = s.side.lastAccessed(m.ID)
		out = append(out, mm)
		return true
	})
	return out
}

// DueMemories returns live, unarchived memories whose cadence makes them
// due for review at now, ordered by importance descending.
func (s *Store) DueMemories(now time.Time) []*types.Memory {
	var due []*types.Memory
	s.latest.IterateLive(func(m *types.Memory) bool {
		if m.Archived {
			return true
		}
		mm := m.Clone()
		mm.LastAccessed = s.side.lastAccessed(m.ID)
		if cadence.Due(mm, now) {
			due = append(due, mm)
		}
		return true
	})
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Importance != due[j].Importance {
			return due[i].Importance > due[j].Importance
		}
		return due[i].ID < due[j].ID
	})
	return due
}

// Relationships returns the live outgoing and incoming edges of a memory.
func (s *Store) Relationships(id string) (out, in []*types.Relationship) {
	return s.latest.Adjacency(id)
}

// RelatedMemory is one BFS hit with its distance from the origin.
type RelatedMemory struct {
	Memory   *types.Memory `json:"memory"`
	Distance int           `json:"distance"`
}

// RelatedMemories walks the relationship graph breadth-first from id up
// to maxDepth hops, following edges in both directions. The visited set
// guarantees termination on cyclic graphs; the origin itself is not
// returned.
func (s *Store) RelatedMemories(id string, maxDepth int) []*RelatedMemory {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []*RelatedMemory

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			outgoing, incoming := s.latest.Adjacency(cur)
			for _, rel := range outgoing {
				next = s.visitRelated(rel.ToID, depth, visited, next, &out)
			}
			for _, rel := range incoming {
				next = s.visitRelated(rel.FromID, depth, visited, next, &out)
			}
		}
		frontier = next
	}
	return out
}

func (s *Store) visitRelated(id string, depth int, visited map[string]bool, next []string, out *[]*RelatedMemory) []string {
	if visited[id] {
		return next
	}
	visited[id] = true
	if m := s.latest.Get(id); m != nil {
		m.LastAccessed = s.side.lastAccessed(id)
		*out = append(*out, &RelatedMemory{Memory: m, Distance: depth})
	}
	return append(next, id)
}
