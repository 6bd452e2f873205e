// Package retrieval answers "which memories are relevant to this text" with
// hybrid semantic/keyword scoring and link-aware expansion.
package retrieval

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/rcliao/assoc-memory/internal/index"
	"github.com/rcliao/assoc-memory/internal/model"
)

const (
	semanticWeight = 0.7
	keywordWeight  = 0.3

	// LinkDecay is applied to scores of memories reached through a link.
	LinkDecay = 0.8

	// MaxExpandedResults caps FindSimilarWithLinks.
	MaxExpandedResults = 10

	// DefaultMinIndexCorpus is the embedded-corpus size at which the index
	// replaces brute force.
	DefaultMinIndexCorpus = 1000

	defaultSearchBreadth = 64
)

// QueryEmbedder turns query text into a normalized vector.
// *embedding.Service satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options controls FindSimilar.
type Options struct {
	Threshold  float64
	MaxResults int
	// ExcludeID drops one memory from the candidates, typically the source
	// memory itself during link detection.
	ExcludeID string
}

// DefaultOptions returns threshold 0.5, top 5.
func DefaultOptions() Options {
	return Options{Threshold: 0.5, MaxResults: 5}
}

// Retriever performs similarity search over a caller-supplied corpus.
type Retriever struct {
	embedder       QueryEmbedder
	index          index.Index
	minIndexCorpus int
	searchBreadth  int
	logger         *log.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithIndex attaches an accelerated index.
func WithIndex(ix index.Index) Option {
	return func(r *Retriever) { r.index = ix }
}

// WithMinIndexCorpus overrides the corpus size that enables the index.
func WithMinIndexCorpus(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.minIndexCorpus = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// New creates a Retriever.
func New(e QueryEmbedder, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:       e,
		minIndexCorpus: DefaultMinIndexCorpus,
		searchBreadth:  defaultSearchBreadth,
		logger:         log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindSimilar ranks memories against query by
// 0.7 × cosine similarity + 0.3 × keyword overlap, keeps scores ≥ opts.Threshold
// and returns the top opts.MaxResults. Memories without embeddings are ignored.
func (r *Retriever) FindSimilar(ctx context.Context, query string, memories []*model.Memory, opts Options) ([]model.Candidate, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}

	qvec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	keywords := ExtractKeywords(query)

	var embedded []*model.Memory
	for _, m := range memories {
		if m != nil && m.HasEmbedding() && m.ID != opts.ExcludeID {
			embedded = append(embedded, m)
		}
	}
	if len(embedded) == 0 {
		return nil, nil
	}

	src := r.source(len(embedded))
	hits, err := src.candidates(ctx, qvec, embedded, opts)
	if err != nil {
		return nil, err
	}

	results := make([]model.Candidate, 0, len(hits))
	for _, h := range hits {
		score := semanticWeight*h.Score + keywordWeight*KeywordScore(keywords, h.Memory.Text)
		if score >= opts.Threshold {
			results = append(results, model.Candidate{Memory: h.Memory, Score: score})
		}
	}

	sortCandidates(results)
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}

// FindSimilarWithLinks returns the top 5 direct matches plus memories linked
// from them, scored hit × link × 0.8, at most 10 in total, sorted descending.
func (r *Retriever) FindSimilarWithLinks(ctx context.Context, query string, memories []*model.Memory) ([]model.Candidate, error) {
	direct, err := r.FindSimilar(ctx, query, memories, DefaultOptions())
	if err != nil {
		return nil, err
	}

	byID := model.Index(memories)
	included := make(map[string]bool, MaxExpandedResults)
	results := make([]model.Candidate, 0, MaxExpandedResults)
	for _, c := range direct {
		included[c.Memory.ID] = true
		results = append(results, c)
	}

	for _, hit := range direct {
		for _, l := range hit.Memory.Links {
			if len(results) >= MaxExpandedResults {
				break
			}
			if included[l.MemoryID] {
				continue
			}
			target, ok := byID[l.MemoryID]
			if !ok {
				continue
			}
			included[l.MemoryID] = true
			results = append(results, model.Candidate{
				Memory: target,
				Score:  hit.Score * l.Score * LinkDecay,
			})
		}
	}

	sortCandidates(results)
	if len(results) > MaxExpandedResults {
		results = results[:MaxExpandedResults]
	}
	return results, nil
}

func (r *Retriever) source(corpus int) candidateSource {
	if r.index != nil && r.index.IsReady() && corpus >= r.minIndexCorpus {
		return indexed{ix: r.index, breadth: r.searchBreadth, logger: r.logger}
	}
	return bruteForce{logger: r.logger}
}

// ExtractKeywords lower-cases query, strips non-alphanumeric characters from
// each token, and keeps tokens longer than 3 characters.
func ExtractKeywords(query string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, tok)
		if len([]rune(tok)) > 3 {
			out = append(out, tok)
		}
	}
	return out
}

// KeywordScore is the fraction of keywords that occur in text, case-insensitively.
func KeywordScore(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

func sortCandidates(c []model.Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Score > c[j].Score
	})
}
