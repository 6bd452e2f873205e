package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// HashEmbedder derives a deterministic pseudo-random vector from the text hash.
// It carries no semantics; it exists for offline runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder. dims defaults to 384 to match
// all-MiniLM-L6-v2.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()

	vec := make(Vector, h.dims)
	for i := range vec {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return vec, nil
}

func (h *HashEmbedder) Dims() int { return h.dims }
