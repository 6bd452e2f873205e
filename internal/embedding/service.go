package embedding

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/vecmath"
)

// Service wraps an Embedder with initialization, normalization, dimension
// checks and caching. Construct one per process and share it.
type Service struct {
	embedder    Embedder
	concurrency int
	logger      *log.Logger

	ready    atomic.Bool
	initOnce singleflight.Group

	mu    sync.RWMutex
	cache map[string]Vector // memory ID -> vector

	queries *ristretto.Cache // query text -> vector
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithConcurrency bounds parallel oracle calls in EmbedMemories.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// BatchResult counts the outcome of EmbedMemories.
type BatchResult struct {
	Embedded int `json:"embedded"`
	Cached   int `json:"cached"`
	Failed   int `json:"failed"`
}

// NewService creates a service around e. A nil embedder yields a service
// that never becomes ready.
func NewService(e Embedder, opts ...Option) (*Service, error) {
	queries, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}

	s := &Service{
		embedder:    e,
		concurrency: 4,
		logger:      log.New(io.Discard),
		cache:       make(map[string]Vector),
		queries:     queries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize prepares the embedding oracle. It is idempotent; concurrent
// callers share one in-flight initialization.
func (s *Service) Initialize(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	if s.embedder == nil {
		return fmt.Errorf("%w: no embedding provider configured", ErrEmbeddingUnavailable)
	}

	_, err, _ := s.initOnce.Do("init", func() (interface{}, error) {
		if s.ready.Load() {
			return nil, nil
		}
		if in, ok := s.embedder.(Initializer); ok {
			if err := in.Init(ctx); err != nil {
				return nil, fmt.Errorf("initialize embedder: %w", err)
			}
		}
		s.ready.Store(true)
		s.logger.Debug("embedding oracle ready", "dims", s.embedder.Dims())
		return nil, nil
	})
	return err
}

// Ready reports whether Initialize has completed.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Dims returns the fixed dimensionality of the configured model, or 0.
func (s *Service) Dims() int {
	if s.embedder == nil {
		return 0
	}
	return s.embedder.Dims()
}

// Embed returns the L2-normalized embedding of text.
func (s *Service) Embed(ctx context.Context, text string) (Vector, error) {
	if !s.ready.Load() {
		return nil, ErrEmbeddingUnavailable
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if dims := s.embedder.Dims(); dims > 0 && len(vec) != dims {
		return nil, fmt.Errorf("embed: %w: got %d, expected %d", vecmath.ErrDimensionMismatch, len(vec), dims)
	}
	return vecmath.Normalize(vec), nil
}

// EmbedQuery is Embed memoized by query text.
func (s *Service) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	if v, ok := s.queries.Get(text); ok {
		return v.(Vector), nil
	}
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.queries.Set(text, vec, 1)
	s.queries.Wait()
	return vec, nil
}

// EmbedMemories assigns an embedding to every memory, reusing cached vectors.
// A memory that already carries a vector of the right size is adopted into the
// cache. Single failures leave that memory without an embedding and are
// counted; they never abort the batch. progress, if set, is called serially
// after each memory with (done, total).
func (s *Service) EmbedMemories(ctx context.Context, memories []*model.Memory, progress func(done, total int)) (BatchResult, error) {
	var res BatchResult
	if !s.ready.Load() {
		return res, ErrEmbeddingUnavailable
	}

	var (
		mu   sync.Mutex
		done int
	)
	total := len(memories)
	report := func(counter *int) {
		mu.Lock()
		defer mu.Unlock()
		*counter++
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, m := range memories {
		if m == nil {
			report(&res.Failed)
			continue
		}
		if vec, ok := s.cached(m.ID); ok {
			m.Embedding = vec
			report(&res.Cached)
			continue
		}
		if dims := s.Dims(); m.HasEmbedding() && len(m.Embedding) == dims {
			s.put(m.ID, m.Embedding)
			report(&res.Cached)
			continue
		}

		g.Go(func() error {
			vec, err := s.Embed(ctx, BuildEnhancedText(m))
			if err != nil {
				s.logger.Warn("embedding failed", "memory", m.ID, "err", err)
				m.Embedding = nil
				report(&res.Failed)
				return nil
			}
			m.Embedding = vec
			s.put(m.ID, vec)
			report(&res.Embedded)
			return nil
		})
	}
	_ = g.Wait()

	if res.Failed > 0 {
		s.logger.Warn("could not embed some memories", "failed", res.Failed, "total", total)
	}
	return res, nil
}

// RegenerateEmbedding invalidates the cached vector for m and recomputes it.
// Call it whenever keywords, tags or context change. On failure the memory
// keeps its previous embedding.
func (s *Service) RegenerateEmbedding(ctx context.Context, m *model.Memory) error {
	s.Invalidate(m.ID)
	vec, err := s.Embed(ctx, BuildEnhancedText(m))
	if err != nil {
		return fmt.Errorf("regenerate %s: %w", m.ID, err)
	}
	m.Embedding = vec
	s.put(m.ID, vec)
	return nil
}

// Invalidate drops the cached vector for one memory.
func (s *Service) Invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

// ClearCache drops every cached vector.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]Vector)
	s.mu.Unlock()
	s.queries.Clear()
}

// CacheSize returns the number of cached memory vectors.
func (s *Service) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Close releases the query cache.
func (s *Service) Close() {
	s.queries.Close()
}

func (s *Service) cached(id string) (Vector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[id]
	return v, ok
}

func (s *Service) put(id string, vec Vector) {
	s.mu.Lock()
	s.cache[id] = vec
	s.mu.Unlock()
}
