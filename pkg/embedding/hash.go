package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/cuemby/burrow/pkg/textindex"
)

// NewHashEmbedder returns a deterministic reference provider: tokens are
// hashed with FNV-64a into dim buckets, signed by the hash's top bit, and
// the bag vector is L2-normalized. It has no semantic understanding, but shared tokens
// produce correlated vectors, which is enough for a self-contained
// default and for tests. Production deployments inject a real model.
func NewHashEmbedder(dim int) Func {
	return func(_ context.Context, text string) ([]float32, error) {
		v := make([]float32, dim)
		for _, tok := range textindex.Tokenize(text) {
			h := fnv.New64a()
			h.Write([]byte(tok))
			sum := h.Sum64()
			bucket := int(sum % uint64(dim))
			sign := float32(1)
			if (sum>>63)&1 == 1 {
				sign = -1
			}
			v[bucket] += sign
		}
		var n float64
		for _, x := range v {
			n += float64(x) * float64(x)
		}
		if n > 0 {
			inv := float32(1 / math.Sqrt(n))
			for i := range v {
				v[i] *= inv
			}
		}
		return v, nil
	}
}
