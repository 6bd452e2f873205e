// Package index provides the accelerated nearest-neighbor index used by
// retrieval once the corpus is large enough for brute force to hurt.
package index

import "context"

// Neighbor is one approximate nearest-neighbor hit.
// Distance is 1 - cosine similarity.
type Neighbor struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// Index answers approximate nearest-neighbor queries over memory embeddings.
type Index interface {
	IsReady() bool
	Search(ctx context.Context, vec []float32, k, searchBreadth int) ([]Neighbor, error)
}
