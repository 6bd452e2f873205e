// Package model defines the core memory data types.
package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// MaxLinks bounds the outgoing link set of every memory.
	MaxLinks = 10

	// LinkQualityThreshold is the score a link must exceed to be kept.
	LinkQualityThreshold = 0.7

	// MaxHistory bounds EvolutionState.History (oldest dropped).
	MaxHistory = 10

	// MaxTriggeredBy bounds EvolutionState.TriggeredBy (most recent kept).
	MaxTriggeredBy = 10
)

// Memory is a captured conversational turn plus its derived semantic metadata.
//
// ID and the provenance fields (Text, Role, Platform, ConversationID, Timestamp)
// are immutable after creation. Keywords, Tags and Context are written by
// enrichment and evolution; Embedding is derived from text + metadata and must be
// regenerated whenever the metadata changes.
type Memory struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Role           string    `json:"role"`
	Platform       string    `json:"platform"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`

	Keywords []string `json:"keywords,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Context  string   `json:"context,omitempty"`

	Embedding []float32       `json:"embedding,omitempty"`
	Links     []Link          `json:"links,omitempty"`
	Evolution *EvolutionState `json:"evolution,omitempty"`
}

// Link is a confirmed, scored relationship from one memory to another.
type Link struct {
	MemoryID  string    `json:"memory_id"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// EvolutionState records how often and why a memory's metadata was revised.
type EvolutionState struct {
	UpdateCount int                 `json:"update_count"`
	LastUpdated time.Time           `json:"last_updated"`
	TriggeredBy []string            `json:"triggered_by,omitempty"`
	History     []EvolutionSnapshot `json:"history,omitempty"`
}

// EvolutionSnapshot is a historical value of a memory's mutable metadata.
type EvolutionSnapshot struct {
	Keywords  []string  `json:"keywords"`
	Tags      []string  `json:"tags"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// Candidate is an ephemeral scoring record produced during retrieval.
type Candidate struct {
	Memory *Memory `json:"memory"`
	Score  float64 `json:"score"`
}

// New creates a memory with a fresh ULID and no metadata, links or evolution.
func New(text, role, platform, conversationID string) *Memory {
	now := time.Now().UTC()
	return &Memory{
		ID:             ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Text:           text,
		Role:           role,
		Platform:       platform,
		ConversationID: conversationID,
		Timestamp:      now,
	}
}

// HasEmbedding reports whether the memory carries a vector.
func (m *Memory) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// LinkIndex returns the position of the link to id, or -1.
func (m *Memory) LinkIndex(id string) int {
	for i, l := range m.Links {
		if l.MemoryID == id {
			return i
		}
	}
	return -1
}

// Snapshot deep-copies the mutable metadata.
func (m *Memory) Snapshot(at time.Time) EvolutionSnapshot {
	return EvolutionSnapshot{
		Keywords:  cloneStrings(m.Keywords),
		Tags:      cloneStrings(m.Tags),
		Context:   m.Context,
		Timestamp: at,
	}
}

// Restore overwrites the mutable metadata from a snapshot.
func (m *Memory) Restore(s EvolutionSnapshot) {
	m.Keywords = cloneStrings(s.Keywords)
	m.Tags = cloneStrings(s.Tags)
	m.Context = s.Context
}

// Index maps memories by ID.
func Index(memories []*Memory) map[string]*Memory {
	byID := make(map[string]*Memory, len(memories))
	for _, m := range memories {
		if m != nil {
			byID[m.ID] = m
		}
	}
	return byID
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
