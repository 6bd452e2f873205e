package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/rcliao/assoc-memory/internal/index"
	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/vecmath"
)

// candidateSource produces semantic similarity scores for a query vector.
// Scoring downstream does not depend on which source ran.
type candidateSource interface {
	candidates(ctx context.Context, qvec []float32, embedded []*model.Memory, opts Options) ([]model.Candidate, error)
}

// bruteForce computes exact cosine similarity against every embedded memory.
type bruteForce struct {
	logger *log.Logger
}

func (b bruteForce) candidates(ctx context.Context, qvec []float32, embedded []*model.Memory, opts Options) ([]model.Candidate, error) {
	out := make([]model.Candidate, 0, len(embedded))
	for _, m := range embedded {
		sim, err := vecmath.Cosine(qvec, m.Embedding)
		if errors.Is(err, vecmath.ErrDimensionMismatch) {
			b.logger.Warn("skipping memory with foreign embedding", "memory", m.ID, "err", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, model.Candidate{Memory: m, Score: sim})
	}
	return out, nil
}

// indexed asks the nearest-neighbor index for 3×MaxResults neighbors.
type indexed struct {
	ix      index.Index
	breadth int
	logger  *log.Logger
}

func (s indexed) candidates(ctx context.Context, qvec []float32, embedded []*model.Memory, opts Options) ([]model.Candidate, error) {
	k := 3 * opts.MaxResults
	if opts.ExcludeID != "" {
		k++
	}
	neighbors, err := s.ix.Search(ctx, qvec, k, s.breadth)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	byID := model.Index(embedded)
	out := make([]model.Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		m, ok := byID[n.ID]
		if !ok {
			// stale index entry or excluded id
			continue
		}
		out = append(out, model.Candidate{Memory: m, Score: 1 - n.Distance})
	}
	s.logger.Debug("index candidates", "k", k, "hits", len(out))
	return out, nil
}
