package textindex

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Field identifies which document field a token occurrence came from.
type Field uint8

const (
	FieldContent Field = iota
	FieldCategory
	FieldType
	FieldTag
	FieldContext
	numFields
)

// fieldWeights scale each field's BM25 contribution in the summed score.
var fieldWeights = [numFields]float64{
	FieldContent:  1.0,
	FieldCategory: 0.6,
	FieldType:     0.6,
	FieldTag:      0.8,
	FieldContext:  0.4,
}

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Document is the indexable projection of a memory.
type Document struct {
	ID       string
	Content  string
	Category string
	Type     string
	Tags     []string
	Context  string
}

// Result is one scored hit from a text query.
type Result struct {
	ID    string
	Score float64
}

// posting records one token's occurrences within one document.
type posting struct {
	tf [numFields]int
}

type docInfo struct {
	tokens [numFields]int // token count per field
}

// Index is the per-store inverted text index with BM25 ranking.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]*posting // token -> docID -> posting
	docs     map[string]*docInfo
	totals   [numFields]int // summed token counts for average lengths
}

// NewIndex returns an empty text index.
func NewIndex() *Index {
	return &Index{
		postings: make(map[string]map[string]*posting),
		docs:     make(map[string]*docInfo),
	}
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Put indexes a document, replacing any previous version of the same id.
func (ix *Index) Put(doc Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(doc.ID)

	info := &docInfo{}
	add := func(field Field, text string) {
		for _, tok := range Tokenize(text) {
			byDoc, ok := ix.postings[tok]
			if !ok {
				byDoc = make(map[string]*posting)
				ix.postings[tok] = byDoc
			}
			p, ok := byDoc[doc.ID]
			if !ok {
				p = &posting{}
				byDoc[doc.ID] = p
			}
			p.tf[field]++
			info.tokens[field]++
		}
	}
	add(FieldContent, doc.Content)
	add(FieldCategory, doc.Category)
	add(FieldType, doc.Type)
	for _, tag := range doc.Tags {
		add(FieldTag, tag)
	}
	add(FieldContext, doc.Context)

	ix.docs[doc.ID] = info
	for f := Field(0); f < numFields; f++ {
		ix.totals[f] += info.tokens[f]
	}
}

// Remove drops a document from the index.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) removeLocked(id string) {
	info, ok := ix.docs[id]
	if !ok {
		return
	}
	for tok, byDoc := range ix.postings {
		if _, ok := byDoc[id]; ok {
			delete(byDoc, id)
			if len(byDoc) == 0 {
				delete(ix.postings, tok)
			}
		}
	}
	for f := Field(0); f < numFields; f++ {
		ix.totals[f] -= info.tokens[f]
	}
	delete(ix.docs, id)
}

// Search ranks documents against the query and returns the top k, ordered
// by descending score with id as tiebreaker. Terms are OR-combined;
// `token*` matches every indexed token with that prefix.
func (ix *Index) Search(query string, k int) []Result {
	terms := ParseQuery(query)
	if len(terms) == 0 || k <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.docs)
	if n == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		for _, byDoc := range ix.matchLocked(term) {
			df := len(byDoc)
			idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
			for id, p := range byDoc {
				scores[id] += ix.scoreLocked(id, p, idf)
			}
		}
	}

	out := make([]Result, 0, len(scores))
	for id, s := range scores {
		out = append(out, Result{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// matchLocked resolves a term to its posting maps: one for an exact
// token, several for a prefix wildcard.
func (ix *Index) matchLocked(term QueryTerm) []map[string]*posting {
	if !term.Prefix {
		if byDoc, ok := ix.postings[term.Token]; ok {
			return []map[string]*posting{byDoc}
		}
		return nil
	}
	var matched []map[string]*posting
	for tok, byDoc := range ix.postings {
		if strings.HasPrefix(tok, term.Token) {
			matched = append(matched, byDoc)
		}
	}
	return matched
}

// scoreLocked sums the per-field weighted BM25 contributions of one
// token's occurrences in one document.
func (ix *Index) scoreLocked(id string, p *posting, idf float64) float64 {
	info := ix.docs[id]
	var score float64
	for f := Field(0); f < numFields; f++ {
		tf := float64(p.tf[f])
		if tf == 0 {
			continue
		}
		avg := float64(ix.totals[f]) / float64(len(ix.docs))
		if avg == 0 {
			continue
		}
		dl := float64(info.tokens[f])
		tfNorm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*dl/avg))
		score += fieldWeights[f] * idf * tfNorm
	}
	return score
}
