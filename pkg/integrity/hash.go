package integrity

import (
	"crypto/sha256"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// ContentHash computes the SHA-256 digest of a record's canonical bytes.
// The previous-record hash is not part of the input.
func ContentHash(r *types.Record) (types.Hash, error) {
	canonical, err := CanonicalRecord(r)
	if err != nil {
		return types.ZeroHash, fmt.Errorf("failed to canonicalize record: %w", err)
	}
	return sha256.Sum256(canonical), nil
}

// ChainHash folds one content hash into the running chain:
// SHA-256(prev || content). The chain starts at the zero genesis hash.
func ChainHash(prev, content types.Hash) types.Hash {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(content[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyRecord recomputes a record's content hash and compares it with the
// stored one.
func VerifyRecord(r *types.Record) (bool, error) {
	h, err := ContentHash(r)
	if err != nil {
		return false, err
	}
	return h == r.Hash, nil
}
