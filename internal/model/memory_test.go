package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New("OAuth authentication in React", "user", "chatgpt", "conv-1")

	require.NotEmpty(t, m.ID)
	assert.Len(t, m.ID, 26)
	assert.Equal(t, "OAuth authentication in React", m.Text)
	assert.Equal(t, "chatgpt", m.Platform)
	assert.False(t, m.Timestamp.IsZero())
	assert.Empty(t, m.Links)
	assert.Nil(t, m.Evolution)

	other := New("JWT tokens for auth", "assistant", "claude", "conv-1")
	assert.NotEqual(t, m.ID, other.ID)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := &Memory{Keywords: []string{"oauth"}, Tags: []string{"auth"}, Context: "login flow"}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s := m.Snapshot(at)
	m.Keywords[0] = "changed"
	m.Tags = append(m.Tags, "extra")

	assert.Equal(t, []string{"oauth"}, s.Keywords)
	assert.Equal(t, []string{"auth"}, s.Tags)
	assert.Equal(t, "login flow", s.Context)
	assert.Equal(t, at, s.Timestamp)

	m.Restore(s)
	assert.Equal(t, []string{"oauth"}, m.Keywords)
	assert.Equal(t, []string{"auth"}, m.Tags)
}

func TestLinkIndex(t *testing.T) {
	m := &Memory{}
	assert.Equal(t, -1, m.LinkIndex("a"))

	m.Links = []Link{{MemoryID: "a", Score: 0.8}, {MemoryID: "b", Score: 0.9}}
	assert.Equal(t, 1, m.LinkIndex("b"))
	assert.Equal(t, -1, m.LinkIndex("c"))
}

func TestIndex(t *testing.T) {
	a := &Memory{ID: "a"}
	b := &Memory{ID: "b"}
	byID := Index([]*Memory{a, nil, b})
	assert.Len(t, byID, 2)
	assert.Same(t, b, byID["b"])
}
