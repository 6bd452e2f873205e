package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/assoc-memory/internal/index"
	"github.com/rcliao/assoc-memory/internal/model"
)

// mapEmbedder returns fixed vectors per query text.
type mapEmbedder map[string][]float32

func (e mapEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, ok := e[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return v, nil
}

type fakeIndex struct {
	ready     bool
	neighbors []index.Neighbor
	calls     int
	lastK     int
}

func (f *fakeIndex) IsReady() bool { return f.ready }

func (f *fakeIndex) Search(ctx context.Context, vec []float32, k, breadth int) ([]index.Neighbor, error) {
	f.calls++
	f.lastK = k
	if k < len(f.neighbors) {
		return f.neighbors[:k], nil
	}
	return f.neighbors, nil
}

func mem(id, text string, vec ...float32) *model.Memory {
	return &model.Memory{ID: id, Text: text, Embedding: vec}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"OAuth authentication in React!", []string{"oauth", "authentication", "react"}},
		{"a an the", nil},
		{"JWT-tokens, auth", []string{"jwttokens"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractKeywords(tt.query), tt.query)
	}
}

func TestKeywordScore(t *testing.T) {
	assert.Zero(t, KeywordScore(nil, "anything"))
	assert.InDelta(t, 0.5, KeywordScore([]string{"oauth", "python"}, "OAuth in React"), 1e-9)
	assert.InDelta(t, 1.0, KeywordScore([]string{"react"}, "OAuth in React"), 1e-9)
}

func TestFindSimilar_HybridScoring(t *testing.T) {
	r := New(mapEmbedder{"react oauth": {1, 0}})
	corpus := []*model.Memory{
		mem("a", "OAuth authentication in React", 1, 0),   // sem 1.0, kw 1.0
		mem("b", "JWT tokens for auth", 0.8, 0.6),         // sem 0.8, kw 0
		mem("c", "baking bread", 0, 1),                    // sem 0, kw 0
		{ID: "d", Text: "react oauth but not embedded"},   // ignored
	}

	got, err := r.FindSimilar(context.Background(), "react oauth", corpus, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Memory.ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "b", got[1].Memory.ID)
	assert.InDelta(t, 0.56, got[1].Score, 1e-6)
}

func TestFindSimilar_ThresholdAndLimit(t *testing.T) {
	r := New(mapEmbedder{"q": {1, 0}})
	var corpus []*model.Memory
	for i := 0; i < 8; i++ {
		corpus = append(corpus, mem(fmt.Sprintf("m%d", i), "text", 1, 0))
	}

	got, err := r.FindSimilar(context.Background(), "q", corpus, Options{Threshold: 0.5, MaxResults: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = r.FindSimilar(context.Background(), "q", corpus, Options{Threshold: 0.71, MaxResults: 3})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindSimilar_ExcludeID(t *testing.T) {
	r := New(mapEmbedder{"q": {1, 0}})
	corpus := []*model.Memory{mem("self", "text", 1, 0), mem("other", "text", 1, 0)}

	opts := DefaultOptions()
	opts.ExcludeID = "self"
	got, err := r.FindSimilar(context.Background(), "q", corpus, opts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "other", got[0].Memory.ID)
}

func TestFindSimilar_SkipsForeignDimensions(t *testing.T) {
	r := New(mapEmbedder{"q": {1, 0}})
	corpus := []*model.Memory{mem("ok", "text", 1, 0), mem("bad", "text", 1, 0, 0)}

	got, err := r.FindSimilar(context.Background(), "q", corpus, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Memory.ID)
}

func TestFindSimilar_EmbedFailure(t *testing.T) {
	r := New(mapEmbedder{})
	_, err := r.FindSimilar(context.Background(), "q", []*model.Memory{mem("a", "x", 1)}, DefaultOptions())
	assert.Error(t, err)
}

func TestFindSimilar_IndexedSourceForLargeCorpus(t *testing.T) {
	ix := &fakeIndex{ready: true}
	r := New(mapEmbedder{"q": {1, 0}}, WithIndex(ix), WithMinIndexCorpus(10))

	var corpus []*model.Memory
	for i := 0; i < 10; i++ {
		corpus = append(corpus, mem(fmt.Sprintf("m%d", i), "text", 0, 1))
	}
	ix.neighbors = []index.Neighbor{
		{ID: "m3", Distance: 0},
		{ID: "m7", Distance: 0.2},
		{ID: "gone", Distance: 0.1},
	}

	got, err := r.FindSimilar(context.Background(), "q", corpus, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, ix.calls)
	assert.Equal(t, 15, ix.lastK)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].Memory.ID)
	assert.InDelta(t, 0.7, got[0].Score, 1e-6)
	assert.Equal(t, "m7", got[1].Memory.ID)
	assert.InDelta(t, 0.56, got[1].Score, 1e-6)
}

func TestFindSimilar_BruteForceBelowThresholdOrNotReady(t *testing.T) {
	corpus := []*model.Memory{mem("a", "text", 1, 0)}

	small := &fakeIndex{ready: true}
	r := New(mapEmbedder{"q": {1, 0}}, WithIndex(small))
	got, err := r.FindSimilar(context.Background(), "q", corpus, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Zero(t, small.calls)

	notReady := &fakeIndex{}
	r = New(mapEmbedder{"q": {1, 0}}, WithIndex(notReady), WithMinIndexCorpus(1))
	_, err = r.FindSimilar(context.Background(), "q", corpus, DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, notReady.calls)
}

func TestFindSimilarWithLinks(t *testing.T) {
	a := mem("a", "OAuth authentication in React", 1, 0)
	b := &model.Memory{ID: "b", Text: "JWT tokens"}
	c := &model.Memory{ID: "c", Text: "session cookies"}
	a.Links = []model.Link{
		{MemoryID: "b", Score: 0.9},
		{MemoryID: "c", Score: 0.75},
		{MemoryID: "missing", Score: 0.8},
		{MemoryID: "a", Score: 0.99},
	}

	r := New(mapEmbedder{"react oauth": {1, 0}})
	got, err := r.FindSimilarWithLinks(context.Background(), "react oauth", []*model.Memory{a, b, c})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Memory.ID)
	assert.Equal(t, "b", got[1].Memory.ID)
	assert.InDelta(t, 1.0*0.9*0.8, got[1].Score, 1e-6)
	assert.Equal(t, "c", got[2].Memory.ID)
	assert.InDelta(t, 1.0*0.75*0.8, got[2].Score, 1e-6)
}

func TestFindSimilarWithLinks_CappedAndSorted(t *testing.T) {
	var corpus []*model.Memory
	for i := 0; i < 5; i++ {
		hit := mem(fmt.Sprintf("hit%d", i), "text", 1, 0)
		for j := 0; j < 10; j++ {
			id := fmt.Sprintf("n%d-%d", i, j)
			corpus = append(corpus, &model.Memory{ID: id, Text: "linked"})
			hit.Links = append(hit.Links, model.Link{MemoryID: id, Score: 0.71 + float64(j)/40})
		}
		corpus = append(corpus, hit)
	}

	r := New(mapEmbedder{"q": {1, 0}})
	got, err := r.FindSimilarWithLinks(context.Background(), "q", corpus)
	require.NoError(t, err)

	assert.Len(t, got, MaxExpandedResults)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}
