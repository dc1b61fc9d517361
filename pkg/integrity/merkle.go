package integrity

import (
	"crypto/sha256"

	"github.com/cuemby/burrow/pkg/types"
)

// hashPair hashes two child nodes into their parent.
func hashPair(left, right types.Hash) types.Hash {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// MerkleTree is an incremental Merkle tree over WAL content hashes in log
// order. Internal nodes hash concatenated children; a level with an odd
// node count duplicates its last node. Append is O(log N): only the
// frontier of unpaired perfect subtrees is retained, one slot per level.
type MerkleTree struct {
	// frontier[i] holds the root of an unpaired perfect subtree of 2^i
	// leaves, or the zero flag in present[i] when the slot is empty.
	frontier []types.Hash
	present  []bool
	count    uint64

	root      types.Hash
	rootValid bool
}

// NewMerkleTree returns an empty tree. The root of an empty tree is the
// zero hash.
func NewMerkleTree() *MerkleTree {
	return &MerkleTree{}
}

// Count returns the number of leaves appended.
func (t *MerkleTree) Count() uint64 {
	return t.count
}

// Append adds one leaf (a record content hash) to the tree.
func (t *MerkleTree) Append(leaf types.Hash) {
	t.rootValid = false
	t.count++
	h := leaf
	for i := 0; ; i++ {
		if i == len(t.frontier) {
			t.frontier = append(t.frontier, h)
			t.present = append(t.present, true)
			return
		}
		if !t.present[i] {
			t.frontier[i] = h
			t.present[i] = true
			return
		}
		h = hashPair(t.frontier[i], h)
		t.present[i] = false
	}
}

// Root returns the current tree root. The value is cached between
// appends, so repeated retrieval is O(1).
func (t *MerkleTree) Root() types.Hash {
	if t.rootValid {
		return t.root
	}
	t.root = t.computeRoot()
	t.rootValid = true
	return t.root
}

// computeRoot folds the frontier bottom-up, duplicating a trailing
// unpaired node at each level exactly as a full rebuild would.
func (t *MerkleTree) computeRoot() types.Hash {
	if t.count == 0 {
		return types.ZeroHash
	}
	var carry types.Hash
	haveCarry := false
	for i := 0; i < len(t.frontier); i++ {
		higher := false
		for j := i + 1; j < len(t.frontier); j++ {
			if t.present[j] {
				higher = true
				break
			}
		}
		switch {
		case t.present[i] && haveCarry:
			carry = hashPair(t.frontier[i], carry)
		case t.present[i] && !haveCarry:
			if higher {
				// Odd count at this level: the trailing subtree pairs
				// with a copy of itself.
				carry = hashPair(t.frontier[i], t.frontier[i])
				haveCarry = true
			} else {
				return t.frontier[i]
			}
		case !t.present[i] && haveCarry:
			if higher {
				carry = hashPair(carry, carry)
			} else {
				return carry
			}
		}
	}
	return carry
}

// MerkleRoot computes the root over a leaf sequence in one pass. Used by
// integrity verification to recompute the root from streamed records.
func MerkleRoot(leaves []types.Hash) types.Hash {
	t := NewMerkleTree()
	for _, l := range leaves {
		t.Append(l)
	}
	return t.Root()
}
