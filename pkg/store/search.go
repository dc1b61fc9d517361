package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/embedding"
	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// DefaultHybridAlpha weights the vector score in hybrid ranking.
const DefaultHybridAlpha = 0.7

// rawMultiplier oversamples each underlying index before merging so the
// hybrid cut does not starve either side.
const rawMultiplier = 4

// SearchParams configures one search call.
type SearchParams struct {
	Query string
	Mode  types.SearchMode
	Limit int

	// Alpha is the vector weight for hybrid mode; zero means the default.
	Alpha float64

	// MinSimilarity cuts semantic hits below this cosine similarity.
	MinSimilarity float64
}

// Search executes a semantic, text, or hybrid query and returns ranked
// live memories. Ordering is stable on (-score, id).
func (s *Store) Search(ctx context.Context, p SearchParams) ([]*types.SearchResult, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, errdefs.InvalidArgf("query is required")
	}
	if p.Mode == "" {
		p.Mode = types.SearchHybrid
	}
	if !types.ValidSearchMode(p.Mode) {
		return nil, errdefs.InvalidArgf("unknown search mode %q", p.Mode)
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(string(p.Mode)).Observe(time.Since(start).Seconds())
	}()

	switch p.Mode {
	case types.SearchSemantic:
		scored, err := s.semanticScores(ctx, p.Query, p.Limit, p.MinSimilarity)
		if err != nil {
			return nil, err
		}
		return s.resolve(scored, p.Limit), nil
	case types.SearchText:
		return s.resolve(s.textScores(p.Query, p.Limit), p.Limit), nil
	default:
		return s.hybrid(ctx, p)
	}
}

type scored struct {
	id    string
	score float64
}

func (s *Store) semanticScores(ctx context.Context, query string, k int, minSim float64) ([]scored, error) {
	if s.vectors == nil {
		return nil, errdefs.Unavailablef("semantic search requires an embedding provider")
	}
	qv, err := embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	threshold := minSim
	if threshold == 0 {
		threshold = -1 // no cutoff
	}
	hits, err := s.vectors.Search(qv, k, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{id: h.ID, score: h.Score}
	}
	return out, nil
}

func (s *Store) textScores(query string, k int) []scored {
	hits := s.text.Search(query, k)
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{id: h.ID, score: h.Score}
	}
	return out
}

// hybrid merges oversampled semantic and text rankings: cosine is mapped
// from [-1,1] to [0,1], BM25 is normalized by its top score, and the two
// are combined as alpha*vec + (1-alpha)*text.
func (s *Store) hybrid(ctx context.Context, p SearchParams) ([]*types.SearchResult, error) {
	alpha := p.Alpha
	if alpha == 0 {
		alpha = DefaultHybridAlpha
	}
	if alpha < 0 || alpha > 1 {
		return nil, errdefs.InvalidArgf("alpha %v, want 0..1", alpha)
	}
	raw := p.Limit * rawMultiplier
	if raw < 20 {
		raw = 20
	}

	textHits := s.textScores(p.Query, raw)
	var vecHits []scored
	if s.vectors != nil {
		var err error
		vecHits, err = s.semanticScores(ctx, p.Query, raw, p.MinSimilarity)
		if err != nil {
			return nil, err
		}
	}

	var topText float64
	if len(textHits) > 0 {
		topText = textHits[0].score
	}

	combined := make(map[string]float64)
	for _, h := range vecHits {
		combined[h.id] += alpha * (h.score + 1) / 2
	}
	for _, h := range textHits {
		norm := h.score
		if topText > 0 {
			norm = h.score / topText
		}
		combined[h.id] += (1 - alpha) * norm
	}

	merged := make([]scored, 0, len(combined))
	for id, sc := range combined {
		merged = append(merged, scored{id: id, score: sc})
	}
	return s.resolve(merged, p.Limit), nil
}

// resolve orders hits on (-score, id), trims to limit, and attaches the
// live memory payloads. Ids tombstoned since scoring drop out.
func (s *Store) resolve(hits []scored, limit int) []*types.SearchResult {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	out := make([]*types.SearchResult, 0, limit)
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		m := s.latest.Get(h.id)
		if m == nil {
			continue
		}
		m.LastAccessed = s.side.lastAccessed(h.id)
		out = append(out, &types.SearchResult{Memory: m, Score: h.score})
	}
	return out
}
