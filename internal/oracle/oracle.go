// Package oracle defines the external reasoning services the engine consults
// (link confirmation, evolution decisions, enrichment) and a Claude-backed
// implementation of all three.
package oracle

import (
	"context"
	"errors"

	"github.com/rcliao/assoc-memory/internal/model"
)

// ErrOracle wraps every network, HTTP or parse failure from an oracle.
var ErrOracle = errors.New("oracle error")

// LinkVerdict is the confirmation oracle's judgement of one candidate.
type LinkVerdict struct {
	MemoryID   string  `json:"memory_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// EvolutionDecision is the evolution oracle's verdict for one target memory.
// A nil Keywords, Tags or Context means the field was omitted and the
// existing value is kept.
type EvolutionDecision struct {
	ShouldEvolve bool     `json:"should_evolve"`
	Keywords     []string `json:"keywords,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Context      *string  `json:"context,omitempty"`
	Reason       string   `json:"reason"`
}

// Enrichment is the semantic metadata derived for a new memory.
type Enrichment struct {
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
	Context  string   `json:"context"`
}

// LinkConfirmer judges which candidates are genuinely related to source.
// It may return fewer verdicts than candidates.
type LinkConfirmer interface {
	ConfirmLinks(ctx context.Context, source *model.Memory, candidates []model.Candidate) ([]LinkVerdict, error)
}

// EvolutionJudge decides whether target's metadata should be revised in
// light of newMem.
type EvolutionJudge interface {
	JudgeEvolution(ctx context.Context, target, newMem *model.Memory) (EvolutionDecision, error)
}

// Enricher derives keywords, tags and context for a memory.
type Enricher interface {
	Enrich(ctx context.Context, m *model.Memory) (Enrichment, error)
}
