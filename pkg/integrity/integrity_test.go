package integrity

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

func memoryRecord(id string, version uint64, content string) *types.Record {
	return &types.Record{
		Kind:      types.KindMemory,
		Seq:       version,
		Timestamp: 1700000000000,
		StoreID:   "main",
		Memory: &types.Memory{
			ID:        id,
			Version:   version,
			Category:  "test",
			Type:      "fact",
			Content:   content,
			Tags:      []string{"b", "a"},
			CreatedAt: 1700000000000,
			UpdatedAt: 1700000000000,
		},
	}
}

func TestContentHashDeterministic(t *testing.T) {
	rec := memoryRecord("m1", 1, "hello")
	h1, err := ContentHash(rec)
	require.NoError(t, err)
	h2, err := ContentHash(rec)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.False(t, h1.IsZero())
}

func TestContentHashTagOrderIndependent(t *testing.T) {
	a := memoryRecord("m1", 1, "hello")
	b := memoryRecord("m1", 1, "hello")
	b.Memory.Tags = []string{"a", "b"}

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "tag sets are canonicalized by sorting")
}

func TestContentHashSensitivity(t *testing.T) {
	base := memoryRecord("m1", 1, "hello")
	baseHash, err := ContentHash(base)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*types.Record)
	}{
		{"content", func(r *types.Record) { r.Memory.Content = "hello!" }},
		{"version", func(r *types.Record) { r.Memory.Version = 2 }},
		{"store", func(r *types.Record) { r.StoreID = "fork" }},
		{"timestamp", func(r *types.Record) { r.Timestamp++ }},
		{"deleted", func(r *types.Record) { r.Deleted = true }},
		{"category", func(r *types.Record) { r.Memory.Category = "other" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := memoryRecord("m1", 1, "hello")
			tt.mutate(rec)
			h, err := ContentHash(rec)
			require.NoError(t, err)
			assert.NotEqual(t, baseHash, h)
		})
	}
}

func TestContentHashExcludesPrevHashAndLastAccessed(t *testing.T) {
	a := memoryRecord("m1", 1, "hello")
	b := memoryRecord("m1", 1, "hello")
	b.PrevHash = types.Hash{1, 2, 3}
	b.Memory.LastAccessed = 1700000099999

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestVerifyRecord(t *testing.T) {
	rec := memoryRecord("m1", 1, "hello")
	h, err := ContentHash(rec)
	require.NoError(t, err)
	rec.Hash = h

	ok, err := VerifyRecord(rec)
	require.NoError(t, err)
	assert.True(t, ok)

	rec.Memory.Content = "tampered"
	ok, err = VerifyRecord(rec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelationshipAndMarkerHashes(t *testing.T) {
	rel := &types.Record{
		Kind:      types.KindRelationship,
		Timestamp: 1,
		StoreID:   "main",
		Relationship: &types.Relationship{
			ID: "r1", Version: 1, FromID: "a", ToID: "b", Kind: types.RelRelatedTo,
		},
	}
	marker := &types.Record{
		Kind:      types.KindSnapshotMarker,
		Timestamp: 1,
		StoreID:   "main",
		Marker:    &types.SnapshotMarker{SnapshotID: "s1", Name: "pre"},
	}
	hr, err := ContentHash(rel)
	require.NoError(t, err)
	hm, err := ContentHash(marker)
	require.NoError(t, err)
	assert.NotEqual(t, hr, hm)
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3.75, 0}
	decoded, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	_, err = DecodeVector([]byte{0, 0})
	assert.Error(t, err)
}

func TestChainHashFold(t *testing.T) {
	h1 := sha256.Sum256([]byte("one"))
	h2 := sha256.Sum256([]byte("two"))

	chain := ChainHash(types.ZeroHash, h1)
	chain = ChainHash(chain, h2)

	manual := sha256.New()
	first := sha256.New()
	first.Write(types.ZeroHash[:])
	first.Write(h1[:])
	manual.Write(first.Sum(nil))
	manual.Write(h2[:])
	var want types.Hash
	copy(want[:], manual.Sum(nil))
	assert.Equal(t, want, chain)
}

// merkleReference builds the tree level by level, duplicating the last
// node at any odd level, as an oracle for the incremental builder.
func merkleReference(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.ZeroHash
	}
	level := append([]types.Hash(nil), leaves...)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		var next []types.Hash
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

func TestMerkleIncrementalMatchesReference(t *testing.T) {
	var leaves []types.Hash
	tree := NewMerkleTree()
	for n := 1; n <= 33; n++ {
		leaf := sha256.Sum256([]byte(fmt.Sprintf("leaf-%d", n)))
		leaves = append(leaves, leaf)
		tree.Append(leaf)
		require.Equal(t, merkleReference(leaves), tree.Root(), "mismatch at %d leaves", n)
		require.Equal(t, uint64(n), tree.Count())
	}
}

func TestMerkleEmptyAndSingle(t *testing.T) {
	tree := NewMerkleTree()
	assert.Equal(t, types.ZeroHash, tree.Root())

	leaf := sha256.Sum256([]byte("only"))
	tree.Append(leaf)
	assert.Equal(t, types.Hash(leaf), tree.Root())
}

func TestMerkleRootCached(t *testing.T) {
	tree := NewMerkleTree()
	for i := 0; i < 5; i++ {
		tree.Append(sha256.Sum256([]byte{byte(i)}))
	}
	r1 := tree.Root()
	r2 := tree.Root()
	assert.Equal(t, r1, r2)
}

func TestMerkleRootHelper(t *testing.T) {
	leaves := []types.Hash{
		sha256.Sum256([]byte("a")),
		sha256.Sum256([]byte("b")),
		sha256.Sum256([]byte("c")),
	}
	assert.Equal(t, merkleReference(leaves), MerkleRoot(leaves))
}
