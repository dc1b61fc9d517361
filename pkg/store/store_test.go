package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/embedding"
	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	embedding.Reset()
	if err := embedding.Configure(embedding.NewHashEmbedder(64), 64); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	st, err := Open(Options{
		Dir:  dir,
		Meta: &types.StoreMeta{StoreID: types.MainStoreID, CreatedAt: types.NowMillis()},
	})
	require.NoError(t, err)
	return st
}

func addMemory(t *testing.T, st *Store, category, typ, content string, tags ...string) *types.Memory {
	t.Helper()
	m, err := st.AddMemory(context.Background(), AddMemoryParams{
		Category: category,
		Type:     typ,
		Content:  content,
		Tags:     tags,
	})
	require.NoError(t, err)
	return m
}

func TestAddMemoryValidation(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	tests := []struct {
		name   string
		params AddMemoryParams
	}{
		{"empty category", AddMemoryParams{Type: "fact", Content: "x"}},
		{"empty type", AddMemoryParams{Category: "c", Content: "x"}},
		{"empty content", AddMemoryParams{Category: "c", Type: "fact", Content: "  "}},
		{"importance too high", AddMemoryParams{Category: "c", Type: "fact", Content: "x", Importance: 11}},
		{"unknown cadence", AddMemoryParams{Category: "c", Type: "fact", Content: "x", CadenceKind: "hourly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := st.AddMemory(context.Background(), tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, errdefs.ErrInvalidArg)
		})
	}

	stats := st.Stats()
	assert.Equal(t, uint64(0), stats.WALRecords, "validation failures never mutate")
}

func TestAddMemoryDefaults(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	m := addMemory(t, st, "general", "note", "hello")
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, uint64(1), m.Version)
	assert.Equal(t, types.DefaultImportance, m.Importance)
	assert.NotZero(t, m.CreatedAt)
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)
}

func TestVersionChainAcrossMutations(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	m := addMemory(t, st, "c", "fact", "v1")
	content2 := "v2"
	m2, err := st.UpdateMemory(context.Background(), m.ID, UpdateMemoryParams{Content: &content2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m2.Version)

	content3 := "v3"
	m3, err := st.UpdateMemory(context.Background(), m.ID, UpdateMemoryParams{Content: &content3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m3.Version)

	// The version sequence read back from the WAL is 1, 2, 3.
	var versions []uint64
	require.NoError(t, st.Log().Iterate(1, func(rec *types.Record) error {
		if rec.Kind == types.KindMemory && rec.Memory.ID == m.ID {
			versions = append(versions, rec.Memory.Version)
		}
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3}, versions)
}

func TestUpdateMemoryErrors(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	content := "x"
	_, err := st.UpdateMemory(context.Background(), "missing", UpdateMemoryParams{Content: &content})
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	m := addMemory(t, st, "c", "fact", "original")
	empty := " "
	_, err = st.UpdateMemory(context.Background(), m.ID, UpdateMemoryParams{Content: &empty})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArg)

	got, err := st.GetMemory(m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)
}

func TestDeleteMemoryIdempotent(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	m := addMemory(t, st, "c", "fact", "doomed")

	deleted, err := st.DeleteMemory(m.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := st.GetMemory(m.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got, "tombstoned memory reads as nil")

	deleted, err = st.DeleteMemory(m.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete returns false, not an error")

	deleted, err = st.DeleteMemory("never-existed")
	require.NoError(t, err)
	assert.False(t, deleted)

	// The tombstone remains visible to history-inclusive listing.
	all := st.ListMemories(ListFilter{IncludeArchived: true}, 0, 0)
	require.Len(t, all, 1)
	assert.True(t, all[0].Deleted)
	assert.Empty(t, st.ListMemories(ListFilter{}, 0, 0))
}

func TestListMemoriesFiltersAndPagination(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	addMemory(t, st, "work", "fact", "first", "alpha")
	addMemory(t, st, "work", "idea", "second", "beta")
	addMemory(t, st, "home", "fact", "third", "alpha")

	assert.Len(t, st.ListMemories(ListFilter{Category: "work"}, 0, 0), 2)
	assert.Len(t, st.ListMemories(ListFilter{Type: "fact"}, 0, 0), 2)
	assert.Len(t, st.ListMemories(ListFilter{Tag: "alpha"}, 0, 0), 2)
	assert.Len(t, st.ListMemories(ListFilter{Category: "work", Type: "fact"}, 0, 0), 1)

	// Monotonic under filter relaxation: filtered results are a subset.
	filtered := st.ListMemories(ListFilter{Category: "work", Tag: "alpha"}, 0, 0)
	relaxed := st.ListMemories(ListFilter{Category: "work"}, 0, 0)
	ids := make(map[string]bool)
	for _, m := range relaxed {
		ids[m.ID] = true
	}
	for _, m := range filtered {
		assert.True(t, ids[m.ID])
	}

	// Insertion order with limit/offset.
	page := st.ListMemories(ListFilter{}, 2, 0)
	require.Len(t, page, 2)
	assert.Equal(t, "first", page[0].Content)
	assert.Equal(t, "second", page[1].Content)
	page = st.ListMemories(ListFilter{}, 2, 2)
	require.Len(t, page, 1)
	assert.Equal(t, "third", page[0].Content)
}

func TestArchivedExcludedByDefault(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	m := addMemory(t, st, "c", "fact", "to archive")
	archived := true
	_, err := st.UpdateMemory(context.Background(), m.ID, UpdateMemoryParams{Archived: &archived})
	require.NoError(t, err)

	assert.Empty(t, st.ListMemories(ListFilter{}, 0, 0))
	assert.Len(t, st.ListMemories(ListFilter{IncludeArchived: true}, 0, 0), 1)
}

func TestGetMemoryRecordsLastAccessed(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t, dir)

	m := addMemory(t, st, "c", "fact", "read me")
	rootBefore := st.Stats().MerkleRoot

	got, err := st.GetMemory(m.ID, true)
	require.NoError(t, err)
	assert.NotZero(t, got.LastAccessed)

	// Recording a read never perturbs integrity.
	assert.Equal(t, rootBefore, st.Stats().MerkleRoot)
	report := st.Verify()
	assert.True(t, report.Valid)

	// Last-accessed survives a reopen via the sidecar.
	require.NoError(t, st.Close())
	st = openTestStore(t, dir)
	defer st.Close()
	got, err = st.GetMemory(m.ID, false)
	require.NoError(t, err)
	assert.NotZero(t, got.LastAccessed)
}

func TestRelationshipDuplicateConflict(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	a := addMemory(t, st, "c", "fact", "A")
	b := addMemory(t, st, "c", "fact", "B")

	_, err := st.AddRelationship(a.ID, b.ID, types.RelRelatedTo)
	require.NoError(t, err)

	before := st.Stats().WALRecords
	_, err = st.AddRelationship(a.ID, b.ID, types.RelRelatedTo)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrConflict)
	assert.Equal(t, before, st.Stats().WALRecords, "conflict leaves the store unchanged")

	out, _ := st.Relationships(a.ID)
	assert.Len(t, out, 1)

	// The reverse direction is a distinct pair.
	_, err = st.AddRelationship(b.ID, a.ID, types.RelSupersedes)
	assert.NoError(t, err)
}

func TestRelationshipValidation(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	a := addMemory(t, st, "c", "fact", "A")

	_, err := st.AddRelationship(a.ID, a.ID, types.RelRelatedTo)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArg)

	_, err = st.AddRelationship(a.ID, "missing", types.RelRelatedTo)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = st.AddRelationship(a.ID, a.ID, "friend_of")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArg)
}

func TestDeleteRelationshipAllowsRecreate(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	a := addMemory(t, st, "c", "fact", "A")
	b := addMemory(t, st, "c", "fact", "B")
	rel, err := st.AddRelationship(a.ID, b.ID, types.RelRelatedTo)
	require.NoError(t, err)

	deleted, err := st.DeleteRelationship(rel.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = st.DeleteRelationship(rel.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = st.AddRelationship(a.ID, b.ID, types.RelContradicts)
	assert.NoError(t, err, "pair is free again after the tombstone")
}

func TestRelatedMemoriesBFS(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	a := addMemory(t, st, "c", "fact", "A")
	b := addMemory(t, st, "c", "fact", "B")
	c := addMemory(t, st, "c", "fact", "C")
	d := addMemory(t, st, "c", "fact", "D")

	// a -> b -> c -> a forms a cycle; d hangs off c.
	_, err := st.AddRelationship(a.ID, b.ID, types.RelRelatedTo)
	require.NoError(t, err)
	_, err = st.AddRelationship(b.ID, c.ID, types.RelElaborates)
	require.NoError(t, err)
	_, err = st.AddRelationship(c.ID, a.ID, types.RelReferences)
	require.NoError(t, err)
	_, err = st.AddRelationship(c.ID, d.ID, types.RelRelatedTo)
	require.NoError(t, err)

	related := st.RelatedMemories(a.ID, 1)
	byID := map[string]int{}
	for _, r := range related {
		byID[r.Memory.ID] = r.Distance
	}
	// Depth 1 reaches b (outgoing) and c (incoming), never a itself.
	assert.Equal(t, map[string]int{b.ID: 1, c.ID: 1}, byID)

	related = st.RelatedMemories(a.ID, 3)
	byID = map[string]int{}
	for _, r := range related {
		byID[r.Memory.ID] = r.Distance
	}
	assert.Len(t, byID, 3, "cycle terminates, all reachable memories found once")
	assert.Equal(t, 2, byID[d.ID])
}

func TestSearchModes(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	m1 := addMemory(t, st, "x", "fact", "Elephant migration patterns in Africa")
	addMemory(t, st, "x", "fact", "Penguin colonies in Antarctica")
	m3 := addMemory(t, st, "x", "fact", "Pizza is Italian")

	for _, mode := range []types.SearchMode{types.SearchText, types.SearchSemantic, types.SearchHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			results, err := st.Search(context.Background(), SearchParams{
				Query: "elephant migration",
				Mode:  mode,
				Limit: 10,
			})
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, m1.ID, results[0].Memory.ID, "memory 1 ranks first in %s mode", mode)
			for _, r := range results {
				if r.Memory.ID == m3.ID {
					assert.Less(t, r.Score, results[0].Score)
				}
			}
		})
	}
}

func TestSearchValidation(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	_, err := st.Search(context.Background(), SearchParams{Query: "  "})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArg)

	_, err = st.Search(context.Background(), SearchParams{Query: "x", Mode: "fuzzy"})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArg)

	_, err = st.Search(context.Background(), SearchParams{Query: "x", Mode: types.SearchHybrid, Alpha: 1.5})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArg)
}

func TestSearchExcludesDeleted(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	m := addMemory(t, st, "x", "fact", "unique zanzibar token")
	results, err := st.Search(context.Background(), SearchParams{Query: "zanzibar", Mode: types.SearchText, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = st.DeleteMemory(m.ID)
	require.NoError(t, err)

	results, err = st.Search(context.Background(), SearchParams{Query: "zanzibar", Mode: types.SearchText, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDueMemoriesOrderedByImportance(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	ctx := context.Background()
	low, err := st.AddMemory(ctx, AddMemoryParams{
		Category: "c", Type: "fact", Content: "low", Importance: 2, CadenceKind: types.CadenceDaily,
	})
	require.NoError(t, err)
	high, err := st.AddMemory(ctx, AddMemoryParams{
		Category: "c", Type: "fact", Content: "high", Importance: 9, CadenceKind: types.CadenceDaily,
	})
	require.NoError(t, err)
	_, err = st.AddMemory(ctx, AddMemoryParams{
		Category: "c", Type: "fact", Content: "no cadence",
	})
	require.NoError(t, err)

	due := st.DueMemories(time.Now().AddDate(0, 0, 2))
	require.Len(t, due, 2)
	assert.Equal(t, high.ID, due[0].ID)
	assert.Equal(t, low.ID, due[1].ID)
}

func TestReopenPreservesEverything(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t, dir)

	m := addMemory(t, st, "work", "fact", "durable content", "tagged")
	b := addMemory(t, st, "work", "fact", "other")
	_, err := st.AddRelationship(m.ID, b.ID, types.RelRelatedTo)
	require.NoError(t, err)
	rootBefore := st.Stats().MerkleRoot
	chainBefore := st.Stats().ChainHash
	require.NoError(t, st.Close())

	st = openTestStore(t, dir)
	defer st.Close()

	got, err := st.GetMemory(m.ID, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "durable content", got.Content)

	out, _ := st.Relationships(m.ID)
	assert.Len(t, out, 1)

	stats := st.Stats()
	assert.Equal(t, rootBefore, stats.MerkleRoot, "replayed Merkle root matches")
	assert.Equal(t, chainBefore, stats.ChainHash, "replayed chain hash matches")

	// Text search works from the rebuilt index.
	results, err := st.Search(context.Background(), SearchParams{Query: "durable", Mode: types.SearchText, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRebuildIndexes(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	addMemory(t, st, "c", "fact", "alpha beta")
	rootBefore := st.Stats().MerkleRoot

	require.NoError(t, st.RebuildIndexes())
	assert.Equal(t, rootBefore, st.Stats().MerkleRoot)

	results, err := st.Search(context.Background(), SearchParams{Query: "alpha", Mode: types.SearchText, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestVerifyAndStats(t *testing.T) {
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	a := addMemory(t, st, "c", "fact", "one")
	b := addMemory(t, st, "c", "fact", "two")
	_, err := st.AddRelationship(a.ID, b.ID, types.RelRelatedTo)
	require.NoError(t, err)
	_, err = st.DeleteMemory(b.ID)
	require.NoError(t, err)

	stats := st.Stats()
	assert.Equal(t, uint64(1), stats.Memories)
	assert.Equal(t, uint64(1), stats.Relationships)
	assert.Equal(t, uint64(1), stats.Tombstones)
	assert.Equal(t, uint64(4), stats.WALRecords)
	assert.False(t, stats.MerkleRoot.IsZero())

	report := st.Verify()
	assert.True(t, report.Valid)
	assert.Equal(t, uint64(4), report.RecordsVerified)
	assert.Equal(t, stats.MerkleRoot, report.MerkleRoot)
}
