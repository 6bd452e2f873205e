package index

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"

	"github.com/rcliao/assoc-memory/internal/model"
)

const collectionName = "memories"

// ChromemIndex keeps memory embeddings in an in-process chromem-go collection.
// It is not ready until the first Rebuild.
type ChromemIndex struct {
	db     *chromem.DB
	logger *log.Logger

	mu    sync.RWMutex
	col   *chromem.Collection
	ready atomic.Bool
}

// NewChromem creates an empty, not-ready index.
func NewChromem(logger *log.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{db: db, logger: logger, col: col}, nil
}

// IsReady reports whether the index has been built.
func (x *ChromemIndex) IsReady() bool {
	return x.ready.Load()
}

// Count returns the number of indexed memories.
func (x *ChromemIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.col.Count()
}

// Rebuild replaces the index contents with every embedded memory in mems
// and marks the index ready.
func (x *ChromemIndex) Rebuild(ctx context.Context, mems []*model.Memory) error {
	x.ready.Store(false)

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	col, err := x.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	x.col = col

	var docs []chromem.Document
	for _, m := range mems {
		if m == nil || !m.HasEmbedding() {
			continue
		}
		docs = append(docs, document(m))
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 4); err != nil {
			return fmt.Errorf("add documents: %w", err)
		}
	}

	x.ready.Store(true)
	x.logger.Debug("index rebuilt", "documents", len(docs))
	return nil
}

// Upsert adds or replaces one memory. Memories without an embedding are removed.
func (x *ChromemIndex) Upsert(ctx context.Context, m *model.Memory) error {
	if !m.HasEmbedding() {
		return x.Remove(ctx, m.ID)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if err := x.col.AddDocument(ctx, document(m)); err != nil {
		return fmt.Errorf("index %s: %w", m.ID, err)
	}
	return nil
}

// Remove deletes one memory from the index.
func (x *ChromemIndex) Remove(ctx context.Context, id string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if err := x.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("unindex %s: %w", id, err)
	}
	return nil
}

// Search returns up to k neighbors of vec. chromem scans the whole collection,
// so searchBreadth has no effect.
func (x *ChromemIndex) Search(ctx context.Context, vec []float32, k, searchBreadth int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	// chromem rejects nResults larger than the collection
	if n := x.col.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := x.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	x.logger.Debug("index search", "k", k, "breadth", searchBreadth, "hits", len(results))

	out := make([]Neighbor, len(results))
	for i, r := range results {
		out[i] = Neighbor{ID: r.ID, Distance: 1 - float64(r.Similarity)}
	}
	return out, nil
}

func document(m *model.Memory) chromem.Document {
	return chromem.Document{
		ID:        m.ID,
		Content:   m.Text,
		Embedding: m.Embedding,
		Metadata: map[string]string{
			"platform":        m.Platform,
			"conversation_id": m.ConversationID,
		},
	}
}
