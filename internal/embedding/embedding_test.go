package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/vecmath"
)

// fakeEmbedder counts calls and fails for texts containing "fail".
type fakeEmbedder struct {
	dims      int
	calls     atomic.Int32
	initCalls atomic.Int32
	initErr   error
	wrongDims bool
}

func (f *fakeEmbedder) Init(ctx context.Context) error {
	f.initCalls.Add(1)
	return f.initErr
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	f.calls.Add(1)
	if strings.Contains(text, "fail") {
		return nil, errors.New("oracle down")
	}
	n := f.dims
	if f.wrongDims {
		n++
	}
	vec := make(Vector, n)
	for i := range vec {
		vec[i] = float32(len(text)+i) + 1
	}
	return vec, nil
}

func (f *fakeEmbedder) Dims() int { return f.dims }

func newReadyService(t *testing.T, e Embedder) *Service {
	t.Helper()
	s, err := NewService(e)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestEmbed_RequiresInitialize(t *testing.T) {
	s, err := NewService(&fakeEmbedder{dims: 4})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestInitialize_NoProvider(t *testing.T) {
	s, err := NewService(nil)
	require.NoError(t, err)
	defer s.Close()

	err = s.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.False(t, s.Ready())
}

func TestInitialize_ConcurrentCallsShareOneInit(t *testing.T) {
	f := &fakeEmbedder{dims: 4}
	s, err := NewService(f)
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, s.Ready())
	assert.LessOrEqual(t, f.initCalls.Load(), int32(20))
	assert.GreaterOrEqual(t, f.initCalls.Load(), int32(1))

	before := f.initCalls.Load()
	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, before, f.initCalls.Load(), "initialize is idempotent once ready")
}

func TestInitialize_FailureIsRetryable(t *testing.T) {
	f := &fakeEmbedder{dims: 4, initErr: errors.New("model missing")}
	s, err := NewService(f)
	require.NoError(t, err)
	defer s.Close()

	require.Error(t, s.Initialize(context.Background()))
	assert.False(t, s.Ready())

	f.initErr = nil
	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.Ready())
}

func TestEmbed_NormalizesAndChecksDims(t *testing.T) {
	s := newReadyService(t, &fakeEmbedder{dims: 8})
	vec, err := s.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	assert.True(t, vecmath.IsNormalized(vec))

	bad := newReadyService(t, &fakeEmbedder{dims: 8, wrongDims: true})
	_, err = bad.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, vecmath.ErrDimensionMismatch)
}

func TestEmbedQuery_Memoized(t *testing.T) {
	f := &fakeEmbedder{dims: 4}
	s := newReadyService(t, f)
	ctx := context.Background()

	a, err := s.EmbedQuery(ctx, "oauth react")
	require.NoError(t, err)
	b, err := s.EmbedQuery(ctx, "oauth react")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestBuildEnhancedText(t *testing.T) {
	tests := []struct {
		name string
		m    model.Memory
		want string
	}{
		{"text only", model.Memory{Text: "hello"}, "hello"},
		{
			"all metadata",
			model.Memory{Text: "OAuth in React", Keywords: []string{"oauth", "react"}, Tags: []string{"auth"}, Context: "login flow"},
			"OAuth in React. Keywords: oauth react. Tags: auth. Context: login flow",
		},
		{
			"tags and context only",
			model.Memory{Text: "JWT", Tags: []string{"auth", "security"}, Context: "tokens"},
			"JWT. Tags: auth security. Context: tokens",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildEnhancedText(&tt.m))
		})
	}
}

func TestEmbedMemories_CachesAndDegrades(t *testing.T) {
	f := &fakeEmbedder{dims: 4}
	s := newReadyService(t, f)
	ctx := context.Background()

	mems := []*model.Memory{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "please fail here"},
		{ID: "c", Text: "gamma"},
	}

	var progress []int
	res, err := s.EmbedMemories(ctx, mems, func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Embedded: 2, Failed: 1}, res)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.True(t, mems[0].HasEmbedding())
	assert.False(t, mems[1].HasEmbedding())
	assert.True(t, mems[2].HasEmbedding())
	assert.Equal(t, 2, s.CacheSize())

	calls := f.calls.Load()
	res, err = s.EmbedMemories(ctx, mems, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cached)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, calls+1, f.calls.Load(), "only the failed memory is retried")
}

func TestEmbedMemories_AdoptsStoredEmbedding(t *testing.T) {
	f := &fakeEmbedder{dims: 2}
	s := newReadyService(t, f)

	m := &model.Memory{ID: "a", Text: "alpha", Embedding: []float32{1, 0}}
	res, err := s.EmbedMemories(context.Background(), []*model.Memory{m}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Cached)
	assert.Zero(t, f.calls.Load())
	assert.Equal(t, 1, s.CacheSize())
}

func TestEmbedMemories_NotReady(t *testing.T) {
	s, err := NewService(&fakeEmbedder{dims: 4})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.EmbedMemories(context.Background(), []*model.Memory{{ID: "a"}}, nil)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestRegenerateEmbedding(t *testing.T) {
	f := &fakeEmbedder{dims: 4}
	s := newReadyService(t, f)
	ctx := context.Background()

	m := &model.Memory{ID: "a", Text: "alpha"}
	_, err := s.EmbedMemories(ctx, []*model.Memory{m}, nil)
	require.NoError(t, err)
	before := append([]float32(nil), m.Embedding...)

	m.Keywords = []string{"a", "much", "longer", "keyword", "list"}
	require.NoError(t, s.RegenerateEmbedding(ctx, m))
	assert.NotEqual(t, before, m.Embedding)

	s.ClearCache()
	assert.Zero(t, s.CacheSize())
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	h := NewHashEmbedder(0)
	assert.Equal(t, 384, h.Dims())

	a, _ := h.Embed(context.Background(), "same text")
	b, _ := h.Embed(context.Background(), "same text")
	c, _ := h.Embed(context.Background(), "other text")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNewFromConfig(t *testing.T) {
	e, err := NewFromConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = NewFromConfig(Config{Provider: "hash", Dimensions: 16})
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dims())

	_, err = NewFromConfig(Config{Provider: "nope"})
	assert.Error(t, err)

	assert.Contains(t, Providers(), "ollama")
	assert.Contains(t, Providers(), "openai")
}
