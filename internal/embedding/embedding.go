// Package embedding provides the embedding oracle, the per-memory vector cache,
// and the enhanced text that memories are embedded from.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// ErrEmbeddingUnavailable is returned when the embedding oracle has not been
// initialized or no provider is configured.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// Initializer is implemented by embedders that need a warm-up step
// (loading a model, checking the server is reachable) before Embed.
type Initializer interface {
	Init(ctx context.Context) error
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider    string // ollama | openai | hash | onnx | "" (disabled)
	Model       string
	URL         string
	APIKey      string
	Dimensions  int
	Concurrency int

	// ONNX only.
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
}

// Factory builds an Embedder from config.
type Factory func(cfg Config) (Embedder, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		"ollama": func(cfg Config) (Embedder, error) { return NewOllamaEmbedder(cfg) },
		"openai": func(cfg Config) (Embedder, error) { return NewOpenAIEmbedder(cfg), nil },
		"hash":   func(cfg Config) (Embedder, error) { return NewHashEmbedder(cfg.Dimensions), nil },
	}
)

// Register makes a provider available to NewFromConfig. Providers behind
// build tags (onnx) register themselves from init.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Providers lists registered provider names.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFromConfig creates the configured embedder. An empty provider returns
// (nil, nil): embeddings disabled.
func NewFromConfig(cfg Config) (Embedder, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q (available: %v)", cfg.Provider, Providers())
	}
	return f(cfg)
}
