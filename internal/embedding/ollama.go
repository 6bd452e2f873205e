package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	client *api.Client
	model  string
	dims   int
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
// Default model: nomic-embed-text. Dimensions are detected by Init unless
// cfg.Dimensions is set.
// The server address comes from cfg.URL, falling back to OLLAMA_HOST.
func NewOllamaEmbedder(cfg Config) (*OllamaEmbedder, error) {
	var client *api.Client
	if cfg.URL != "" {
		base, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse ollama url: %w", err)
		}
		client = api.NewClient(base, &http.Client{Timeout: 30 * time.Second})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
	}

	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedder{client: client, model: model, dims: cfg.Dimensions}, nil
}

// Init checks the Ollama server is reachable. Without a configured
// dimension it embeds a sample text to learn the model's size.
func (e *OllamaEmbedder) Init(ctx context.Context) error {
	if err := e.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	if e.dims > 0 {
		return nil
	}
	vec, err := e.Embed(ctx, "dimension check")
	if err != nil {
		return fmt.Errorf("detect dimensions: %w", err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("detect dimensions: empty embedding from %s", e.model)
	}
	e.dims = len(vec)
	return nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embeddings[0], nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }
