// Package linkgraph detects related memories and keeps the link graph
// bidirectional, bounded to model.MaxLinks per node, and above the quality
// threshold.
//
// Nothing here locks memories. Callers serialize work on the same memory.
package linkgraph

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/oracle"
	"github.com/rcliao/assoc-memory/internal/ratelimit"
	"github.com/rcliao/assoc-memory/internal/retrieval"
)

// SimilarFinder produces link candidates. *retrieval.Retriever satisfies it.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, query string, memories []*model.Memory, opts retrieval.Options) ([]model.Candidate, error)
}

// Maintainer owns link detection and link-set mutation.
type Maintainer struct {
	finder    SimilarFinder
	confirmer oracle.LinkConfirmer
	limiter   *ratelimit.Limiter
	enabled   bool
	logger    *log.Logger
	now       func() time.Time
}

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithLimiter gates oracle calls through a shared limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(m *Maintainer) { m.limiter = l }
}

// WithEnabled toggles link detection. Enabled by default.
func WithEnabled(on bool) Option {
	return func(m *Maintainer) { m.enabled = on }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Maintainer) { m.logger = l }
}

// New creates a Maintainer. A nil confirmer disables detection.
func New(finder SimilarFinder, confirmer oracle.LinkConfirmer, opts ...Option) *Maintainer {
	m := &Maintainer{
		finder:    finder,
		confirmer: confirmer,
		enabled:   true,
		logger:    log.New(io.Discard),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DetectLinks returns up to model.MaxLinks confirmed links from source to
// memories in all, strongest first. It returns nil when detection is disabled,
// has no oracle, finds no candidates or the oracle fails. The oracle is never
// called with an empty candidate set.
func (lm *Maintainer) DetectLinks(ctx context.Context, source *model.Memory, all []*model.Memory) []model.Link {
	if !lm.enabled || lm.confirmer == nil {
		return nil
	}

	opts := retrieval.DefaultOptions()
	opts.ExcludeID = source.ID
	candidates, err := lm.finder.FindSimilar(ctx, source.Text, all, opts)
	if err != nil {
		lm.logger.Warn("link candidates unavailable", "memory", source.ID, "err", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	if lm.limiter != nil {
		if err := lm.limiter.Acquire(ctx); err != nil {
			lm.logger.Warn("link detection cancelled", "memory", source.ID, "err", err)
			return nil
		}
	}
	verdicts, err := lm.confirmer.ConfirmLinks(ctx, source, candidates)
	if err != nil {
		lm.logger.Warn("link confirmation failed", "memory", source.ID, "err", err)
		return nil
	}

	offered := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		offered[c.Memory.ID] = true
	}

	now := lm.now().UTC()
	seen := make(map[string]bool, len(verdicts))
	var links []model.Link
	for _, v := range verdicts {
		if !offered[v.MemoryID] || seen[v.MemoryID] || v.Confidence <= model.LinkQualityThreshold {
			continue
		}
		seen[v.MemoryID] = true
		links = append(links, model.Link{
			MemoryID:  v.MemoryID,
			Score:     v.Confidence,
			Reason:    v.Reason,
			CreatedAt: now,
		})
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Score > links[j].Score
	})
	if len(links) > model.MaxLinks {
		links = links[:model.MaxLinks]
	}
	lm.logger.Debug("links detected", "memory", source.ID, "candidates", len(candidates), "links", len(links))
	return links
}

// CreateBidirectionalLinks writes the reverse edge target -> source for every
// link. An existing reverse edge is left untouched. At capacity the weakest
// edge is evicted only for a strictly stronger one. source is never mutated.
// It returns the targets whose link sets changed.
func (lm *Maintainer) CreateBidirectionalLinks(source *model.Memory, links []model.Link, all []*model.Memory) []*model.Memory {
	byID := model.Index(all)
	now := lm.now().UTC()

	var touched []*model.Memory
	changed := make(map[string]bool)
	for _, l := range links {
		target, ok := byID[l.MemoryID]
		if !ok || target.ID == source.ID {
			continue
		}
		reverse := model.Link{MemoryID: source.ID, Score: l.Score, Reason: l.Reason, CreatedAt: now}
		if addLink(target, reverse) && !changed[target.ID] {
			changed[target.ID] = true
			touched = append(touched, target)
		}
	}
	return touched
}

// MergeForwardLinks applies detected links to source under the same rules as
// reverse edges and returns how many were added.
func MergeForwardLinks(source *model.Memory, links []model.Link) int {
	added := 0
	for _, l := range links {
		if l.MemoryID == source.ID {
			continue
		}
		if addLink(source, l) {
			added++
		}
	}
	return added
}

// RemoveLowQualityLinks drops links scoring below the quality threshold and
// returns how many were removed.
func RemoveLowQualityLinks(m *model.Memory) int {
	kept := m.Links[:0]
	for _, l := range m.Links {
		if l.Score >= model.LinkQualityThreshold {
			kept = append(kept, l)
		}
	}
	removed := len(m.Links) - len(kept)
	m.Links = kept
	return removed
}

// addLink inserts l into m.Links unless an edge to the same memory exists,
// the score is not above the threshold, or m is full and l is not stronger
// than its weakest edge.
func addLink(m *model.Memory, l model.Link) bool {
	if l.Score <= model.LinkQualityThreshold || m.LinkIndex(l.MemoryID) >= 0 {
		return false
	}
	if len(m.Links) < model.MaxLinks {
		m.Links = append(m.Links, l)
		return true
	}

	weakest := 0
	for i, existing := range m.Links {
		if existing.Score < m.Links[weakest].Score {
			weakest = i
		}
	}
	if l.Score <= m.Links[weakest].Score {
		return false
	}
	m.Links = append(m.Links[:weakest], m.Links[weakest+1:]...)
	m.Links = append(m.Links, l)
	return true
}
