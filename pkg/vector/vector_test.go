package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndSearch(t *testing.T) {
	ix := NewIndex(3)
	require.NoError(t, ix.Put("x", []float32{1, 0, 0}))
	require.NoError(t, ix.Put("y", []float32{0, 1, 0}))
	require.NoError(t, ix.Put("xy", []float32{1, 1, 0}))

	hits, err := ix.Search([]float32{1, 0, 0}, 10, -1)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "x", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "xy", hits[1].ID)
	assert.Equal(t, "y", hits[2].ID)
}

func TestSearchTopK(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Put("a", []float32{1, 0}))
	require.NoError(t, ix.Put("b", []float32{0.9, 0.1}))
	require.NoError(t, ix.Put("c", []float32{0, 1}))

	hits, err := ix.Search([]float32{1, 0}, 2, -1)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
}

func TestSearchThreshold(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Put("near", []float32{1, 0}))
	require.NoError(t, ix.Put("far", []float32{-1, 0}))

	hits, err := ix.Search([]float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "near", hits[0].ID)
}

func TestDimensionEnforced(t *testing.T) {
	ix := NewIndex(4)
	assert.Error(t, ix.Put("bad", []float32{1, 2}))
	_, err := ix.Search([]float32{1}, 5, -1)
	assert.Error(t, err)
}

func TestPutReplacesAndRemove(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Put("a", []float32{1, 0}))
	require.NoError(t, ix.Put("a", []float32{0, 1}))
	assert.Equal(t, 1, ix.Len())

	hits, err := ix.Search([]float32{0, 1}, 1, -1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	ix.Remove("a")
	assert.Equal(t, 0, ix.Len())
	hits, err = ix.Search([]float32{0, 1}, 1, -1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestZeroQueryVector(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Put("a", []float32{1, 0}))
	hits, err := ix.Search([]float32{0, 0}, 5, -1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTieBreakByID(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Put("b", []float32{1, 0}))
	require.NoError(t, ix.Put("a", []float32{2, 0}), "same direction, same cosine")

	hits, err := ix.Search([]float32{1, 0}, 2, -1)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
}
