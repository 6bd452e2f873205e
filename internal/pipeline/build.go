package pipeline

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/rcliao/assoc-memory/internal/config"
	"github.com/rcliao/assoc-memory/internal/embedding"
	"github.com/rcliao/assoc-memory/internal/enrich"
	"github.com/rcliao/assoc-memory/internal/evolution"
	"github.com/rcliao/assoc-memory/internal/index"
	"github.com/rcliao/assoc-memory/internal/linkgraph"
	"github.com/rcliao/assoc-memory/internal/oracle"
	"github.com/rcliao/assoc-memory/internal/ratelimit"
	"github.com/rcliao/assoc-memory/internal/retrieval"
	"github.com/rcliao/assoc-memory/internal/store"
)

// FromConfig wires a Pipeline from configuration. All oracle-calling
// components share one rate limiter. The returned Service must be closed
// by the caller.
func FromConfig(cfg *config.Config, st store.Store, logger *log.Logger) (*Pipeline, *embedding.Service, error) {
	embedder, err := embedding.NewFromConfig(cfg.EmbeddingConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("embedding provider: %w", err)
	}
	svc, err := embedding.NewService(embedder,
		embedding.WithLogger(logger.WithPrefix("embedding")),
		embedding.WithConcurrency(cfg.Embedding.Concurrency),
	)
	if err != nil {
		return nil, nil, err
	}

	var ix VectorIndex
	if cfg.Index.Enabled {
		chromemIndex, err := index.NewChromem(logger.WithPrefix("index"))
		if err != nil {
			svc.Close()
			return nil, nil, fmt.Errorf("index: %w", err)
		}
		ix = chromemIndex
	}

	retrieverOpts := []retrieval.Option{
		retrieval.WithLogger(logger.WithPrefix("retrieval")),
		retrieval.WithMinIndexCorpus(cfg.Index.MinCorpus),
	}
	if ix != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithIndex(ix))
	}
	retriever := retrieval.New(svc, retrieverOpts...)

	// A nil *Claude must not become a non-nil interface.
	var (
		confirmer oracle.LinkConfirmer
		judge     oracle.EvolutionJudge
		enricher  oracle.Enricher
	)
	if claude := oracle.NewClaudeFromConfig(cfg.OracleConfig()); claude != nil {
		confirmer, judge, enricher = claude, claude, claude
	} else {
		logger.Debug("no oracle API key; links, evolution and enrichment disabled")
	}
	if !cfg.Features.Enrichment {
		enricher = nil
	}

	limiter := ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window)

	p := New(Components{
		Store:      st,
		Embeddings: svc,
		Index:      ix,
		Retriever:  retriever,
		Links: linkgraph.New(retriever, confirmer,
			linkgraph.WithLimiter(limiter),
			linkgraph.WithEnabled(cfg.Features.Links),
			linkgraph.WithLogger(logger.WithPrefix("links")),
		),
		Evolution: evolution.New(judge,
			evolution.WithLimiter(limiter),
			evolution.WithEnabled(cfg.Features.Evolution),
			evolution.WithLogger(logger.WithPrefix("evolution")),
		),
		Enrich: enrich.New(enricher,
			enrich.WithLimiter(limiter),
			enrich.WithBackoff(cfg.Enrichment.Retries, cfg.Enrichment.InitialInterval),
			enrich.WithLogger(logger.WithPrefix("enrich")),
		),
		Logger: logger,
	})
	return p, svc, nil
}
