package vector

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Result is one scored hit from a similarity query.
type Result struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}

// Index holds one fixed-dimension embedding per live memory and answers
// top-k cosine similarity queries by brute-force scan. The documented
// operating envelope is tens of thousands of vectors; no approximate
// structure is maintained.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string][]float32
	norms   map[string]float64
}

// NewIndex creates an index for embeddings of the given dimension.
func NewIndex(dim int) *Index {
	return &Index{
		dim:     dim,
		vectors: make(map[string][]float32),
		norms:   make(map[string]float64),
	}
}

// Dim returns the fixed embedding dimension.
func (ix *Index) Dim() int {
	return ix.dim
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Put inserts or replaces the embedding for id.
func (ix *Index) Put(id string, v []float32) error {
	if len(v) != ix.dim {
		return fmt.Errorf("embedding dimension %d, want %d", len(v), ix.dim)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors[id] = v
	ix.norms[id] = norm(v)
	return nil
}

// Remove drops the embedding for id, if present.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, id)
	delete(ix.norms, id)
}

// Search returns up to k ids most similar to the query vector, ordered by
// descending cosine similarity with id as tiebreaker. Hits below
// threshold are cut.
func (ix *Index) Search(query []float32, k int, threshold float64) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dimension %d, want %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	qn := norm(query)
	if qn == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	h := &resultHeap{}
	heap.Init(h)
	for id, v := range ix.vectors {
		n := ix.norms[id]
		if n == 0 {
			continue
		}
		score := dot(query, v) / (qn * n)
		if score < threshold {
			continue
		}
		if h.Len() < k {
			heap.Push(h, Result{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = Result{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}

	out := make([]Result, h.Len())
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// resultHeap is a min-heap on score, keeping the current top-k.
type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
