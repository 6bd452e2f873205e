// Package pipeline runs the capture flow (enrich, embed, link, evolve,
// persist) and the query-time operations over a Store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/rcliao/assoc-memory/internal/embedding"
	"github.com/rcliao/assoc-memory/internal/enrich"
	"github.com/rcliao/assoc-memory/internal/evolution"
	"github.com/rcliao/assoc-memory/internal/index"
	"github.com/rcliao/assoc-memory/internal/linkgraph"
	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/retrieval"
	"github.com/rcliao/assoc-memory/internal/store"
)

// VectorIndex is an index the pipeline can maintain.
// *index.ChromemIndex satisfies it.
type VectorIndex interface {
	index.Index
	Rebuild(ctx context.Context, mems []*model.Memory) error
	Upsert(ctx context.Context, m *model.Memory) error
	Remove(ctx context.Context, id string) error
}

// Components are the collaborators a Pipeline drives. Index, Enrich,
// Links and Evolution are optional.
type Components struct {
	Store      store.Store
	Embeddings *embedding.Service
	Index      VectorIndex
	Retriever  *retrieval.Retriever
	Links      *linkgraph.Maintainer
	Evolution  *evolution.Engine
	Enrich     *enrich.Pipeline
	Logger     *log.Logger
}

// Pipeline serializes captures and mutations so that no two flows touch
// the same memory's links or evolution state concurrently.
type Pipeline struct {
	store      store.Store
	embeddings *embedding.Service
	index      VectorIndex
	retriever  *retrieval.Retriever
	links      *linkgraph.Maintainer
	evolution  *evolution.Engine
	enrich     *enrich.Pipeline
	logger     *log.Logger

	mu sync.Mutex
}

// New creates a Pipeline. Call Open before use.
func New(c Components) *Pipeline {
	p := &Pipeline{
		store:      c.Store,
		embeddings: c.Embeddings,
		index:      c.Index,
		retriever:  c.Retriever,
		links:      c.Links,
		evolution:  c.Evolution,
		enrich:     c.Enrich,
		logger:     c.Logger,
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	if p.retriever == nil {
		var opts []retrieval.Option
		if p.index != nil {
			opts = append(opts, retrieval.WithIndex(p.index))
		}
		p.retriever = retrieval.New(p.embeddings, opts...)
	}
	if p.links == nil {
		p.links = linkgraph.New(p.retriever, nil)
	}
	if p.evolution == nil {
		p.evolution = evolution.New(nil)
	}
	if p.enrich == nil {
		p.enrich = enrich.New(nil)
	}
	return p
}

// Open initializes the embedding oracle, embeds any stored memory that lacks
// a vector, and builds the index. An unavailable embedding oracle is logged,
// not fatal: captures still persist, but search fails until it is reachable.
func (p *Pipeline) Open(ctx context.Context) error {
	if err := p.embeddings.Initialize(ctx); err != nil {
		p.logger.Warn("embeddings unavailable", "err", err)
		return nil
	}

	corpus, err := p.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}

	var missing []*model.Memory
	for _, m := range corpus {
		if !m.HasEmbedding() {
			missing = append(missing, m)
		}
	}
	if _, err := p.embeddings.EmbedMemories(ctx, corpus, nil); err != nil {
		return fmt.Errorf("warm embeddings: %w", err)
	}

	var backfilled []*model.Memory
	for _, m := range missing {
		if m.HasEmbedding() {
			backfilled = append(backfilled, m)
		}
	}
	if err := p.store.BulkPut(ctx, backfilled); err != nil {
		return fmt.Errorf("persist embeddings: %w", err)
	}

	if p.index != nil {
		if err := p.index.Rebuild(ctx, corpus); err != nil {
			return fmt.Errorf("build index: %w", err)
		}
	}
	p.logger.Debug("pipeline open", "memories", len(corpus), "backfilled", len(backfilled))
	return nil
}

// CaptureParams describes a conversational turn to remember.
type CaptureParams struct {
	Text           string
	Role           string
	Platform       string
	ConversationID string
}

// Evolved records one target memory revised by a capture.
type Evolved struct {
	MemoryID string `json:"memory_id"`
	Reason   string `json:"reason"`
}

// CaptureResult summarizes a capture.
type CaptureResult struct {
	Memory      *model.Memory `json:"memory"`
	Embedded    bool          `json:"embedded"`
	EnrichError string        `json:"enrich_error,omitempty"`
	Links       []model.Link  `json:"links"`
	Evolved     []Evolved     `json:"evolved"`
}

// Capture creates a memory from p and runs it through enrichment, embedding,
// link detection and evolution of the linked memories, then persists every
// memory that changed. Oracle failures degrade the result; only storage
// failures are returned.
func (p *Pipeline) Capture(ctx context.Context, params CaptureParams) (*CaptureResult, error) {
	if params.Text == "" {
		return nil, errors.New("capture: text is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m := model.New(params.Text, params.Role, params.Platform, params.ConversationID)
	res := &CaptureResult{Memory: m, Links: []model.Link{}, Evolved: []Evolved{}}

	if err := p.enrich.Enrich(ctx, m); err != nil {
		res.EnrichError = err.Error()
	}

	if p.embeddings.Ready() {
		if _, err := p.embeddings.EmbedMemories(ctx, []*model.Memory{m}, nil); err != nil {
			p.logger.Warn("embedding failed", "memory", m.ID, "err", err)
		}
	}
	res.Embedded = m.HasEmbedding()

	corpus, err := p.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	all := append(corpus, m)
	byID := model.Index(all)

	links := p.links.DetectLinks(ctx, m, all)
	linkgraph.MergeForwardLinks(m, links)
	changed := p.links.CreateBidirectionalLinks(m, links, all)
	res.Links = m.Links
	if res.Links == nil {
		res.Links = []model.Link{}
	}

	for _, l := range links {
		target, ok := byID[l.MemoryID]
		if !ok {
			continue
		}
		d := p.evolution.CheckEvolution(ctx, target, m)
		if !p.evolution.ApplyEvolution(target, d, m.ID) {
			continue
		}
		p.refresh(ctx, target)
		changed = append(changed, target)
		res.Evolved = append(res.Evolved, Evolved{MemoryID: target.ID, Reason: d.Reason})
	}

	if err := p.store.BulkPut(ctx, dedupe(append([]*model.Memory{m}, changed...))); err != nil {
		return nil, fmt.Errorf("persist capture: %w", err)
	}
	p.upsert(ctx, m)

	p.logger.Info("memory captured", "memory", m.ID, "links", len(res.Links), "evolved", len(res.Evolved))
	return res, nil
}

// SearchParams controls Search.
type SearchParams struct {
	Limit     int
	Threshold float64
	WithLinks bool
}

// Search ranks stored memories against query. WithLinks expands the top
// direct hits through their links.
func (p *Pipeline) Search(ctx context.Context, query string, params SearchParams) ([]model.Candidate, error) {
	if !p.embeddings.Ready() {
		return nil, embedding.ErrEmbeddingUnavailable
	}
	corpus, err := p.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}

	if params.WithLinks {
		res, err := p.retriever.FindSimilarWithLinks(ctx, query, corpus)
		if err != nil {
			return nil, err
		}
		if params.Limit > 0 && len(res) > params.Limit {
			res = res[:params.Limit]
		}
		return res, nil
	}
	return p.retriever.FindSimilar(ctx, query, corpus, retrieval.Options{
		Threshold:  params.Threshold,
		MaxResults: params.Limit,
	})
}

// Revert restores memory id's metadata from history entry versionIndex.
func (p *Pipeline) Revert(ctx context.Context, id string, versionIndex int) (*model.Memory, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.evolution.Revert(m, versionIndex); err != nil {
		return nil, err
	}
	p.refresh(ctx, m)
	if err := p.store.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("persist revert: %w", err)
	}
	return m, nil
}

// PruneResult summarizes Prune.
type PruneResult struct {
	Memories     int `json:"memories"`
	LinksRemoved int `json:"links_removed"`
}

// Prune removes links below the quality threshold across the corpus.
func (p *Pipeline) Prune(ctx context.Context) (PruneResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res PruneResult
	corpus, err := p.store.All(ctx)
	if err != nil {
		return res, fmt.Errorf("load memories: %w", err)
	}

	var changed []*model.Memory
	for _, m := range corpus {
		if n := linkgraph.RemoveLowQualityLinks(m); n > 0 {
			res.LinksRemoved += n
			changed = append(changed, m)
		}
	}
	res.Memories = len(changed)
	if err := p.store.BulkPut(ctx, changed); err != nil {
		return res, fmt.Errorf("persist prune: %w", err)
	}
	return res, nil
}

// Reembed drops every cached and stored vector and embeds the corpus again.
func (p *Pipeline) Reembed(ctx context.Context, progress func(done, total int)) (embedding.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res embedding.BatchResult
	if !p.embeddings.Ready() {
		return res, embedding.ErrEmbeddingUnavailable
	}
	corpus, err := p.store.All(ctx)
	if err != nil {
		return res, fmt.Errorf("load memories: %w", err)
	}

	p.embeddings.ClearCache()
	for _, m := range corpus {
		m.Embedding = nil
	}
	res, err = p.embeddings.EmbedMemories(ctx, corpus, progress)
	if err != nil {
		return res, err
	}
	if err := p.store.BulkPut(ctx, corpus); err != nil {
		return res, fmt.Errorf("persist embeddings: %w", err)
	}
	if p.index != nil {
		if err := p.index.Rebuild(ctx, corpus); err != nil {
			return res, fmt.Errorf("rebuild index: %w", err)
		}
	}
	return res, nil
}

// Forget deletes memory id and every link pointing at it, including links
// whose reverse edge was evicted.
func (p *Pipeline) Forget(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.store.Get(ctx, id); err != nil {
		return err
	}

	corpus, err := p.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	var changed []*model.Memory
	for _, other := range corpus {
		if other.ID == id {
			continue
		}
		stripped := false
		for i := other.LinkIndex(id); i >= 0; i = other.LinkIndex(id) {
			other.Links = append(other.Links[:i], other.Links[i+1:]...)
			stripped = true
		}
		if stripped {
			changed = append(changed, other)
		}
	}
	if err := p.store.BulkPut(ctx, changed); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}
	p.embeddings.Invalidate(id)
	if p.index != nil && p.index.IsReady() {
		if err := p.index.Remove(ctx, id); err != nil {
			p.logger.Warn("index remove failed", "memory", id, "err", err)
		}
	}
	return nil
}

// refresh regenerates m's embedding after a metadata change and re-indexes
// it. On failure m keeps its previous vector.
func (p *Pipeline) refresh(ctx context.Context, m *model.Memory) {
	if !p.embeddings.Ready() {
		return
	}
	if err := p.embeddings.RegenerateEmbedding(ctx, m); err != nil {
		p.logger.Warn("embedding refresh failed", "memory", m.ID, "err", err)
		return
	}
	p.upsert(ctx, m)
}

func (p *Pipeline) upsert(ctx context.Context, m *model.Memory) {
	if p.index == nil || !p.index.IsReady() || !m.HasEmbedding() {
		return
	}
	if err := p.index.Upsert(ctx, m); err != nil {
		p.logger.Warn("index update failed", "memory", m.ID, "err", err)
	}
}

func dedupe(ms []*model.Memory) []*model.Memory {
	seen := make(map[string]bool, len(ms))
	out := ms[:0]
	for _, m := range ms {
		if !seen[m.ID] {
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	return out
}
