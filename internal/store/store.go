// Package store provides the memory storage interface and SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/assoc-memory/internal/model"
)

// ErrNotFound is returned when no memory has the requested id.
var ErrNotFound = errors.New("memory not found")

// ListParams holds parameters for listing memories.
type ListParams struct {
	Platform       string
	ConversationID string
	Limit          int
}

// Store defines the memory storage interface.
type Store interface {
	// Get retrieves a memory by id.
	Get(ctx context.Context, id string) (*model.Memory, error)

	// Put creates a memory or updates its mutable fields.
	Put(ctx context.Context, m *model.Memory) error

	// BulkPut writes all memories in one transaction.
	BulkPut(ctx context.Context, ms []*model.Memory) error

	// All returns every memory, oldest first.
	All(ctx context.Context) ([]*model.Memory, error)

	// List lists recent memories matching the given filters.
	List(ctx context.Context, p ListParams) ([]*model.Memory, error)

	// Delete removes a memory.
	Delete(ctx context.Context, id string) error

	// Close closes the store.
	Close() error
}
