package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama answers heartbeats and returns a dims-sized embedding.
func fakeOllama(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			w.WriteHeader(http.StatusOK)
			return
		}
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = float32(i + 1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      "mxbai-embed-large",
			"embeddings": [][]float32{vec},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllama_DetectsDimensions(t *testing.T) {
	srv := fakeOllama(t, 1024)

	e, err := NewOllamaEmbedder(Config{URL: srv.URL, Model: "mxbai-embed-large"})
	require.NoError(t, err)
	assert.Zero(t, e.Dims())

	s := newReadyService(t, e)
	assert.Equal(t, 1024, s.Dims())

	vec, err := s.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 1024)
}

func TestOllama_ConfiguredDimensionsKept(t *testing.T) {
	srv := fakeOllama(t, 8)

	e, err := NewOllamaEmbedder(Config{URL: srv.URL, Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, e.Init(context.Background()))
	assert.Equal(t, 4, e.Dims())

	s := newReadyService(t, e)
	_, err = s.Embed(context.Background(), "hello")
	assert.Error(t, err, "server size disagrees with configured dims")
}
