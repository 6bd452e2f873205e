package pipeline

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/rcliao/assoc-memory/internal/retrieval"
)

// ContextMemory is a memory selected for context injection.
type ContextMemory struct {
	ID       string  `json:"id"`
	Role     string  `json:"role"`
	Platform string  `json:"platform"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Linked   bool    `json:"linked,omitempty"`
	Excerpt  bool    `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget   int             `json:"budget"`
	Used     int             `json:"used"`
	Memories []ContextMemory `json:"memories"`
}

// Context assembles memories relevant to query, including ones reached
// through links, within a token budget.
func (p *Pipeline) Context(ctx context.Context, query string, budget int) (*ContextResult, error) {
	if budget <= 0 {
		budget = 1000
	}
	// Convert token budget to char budget (rough: 4 chars/token)
	charBudget := budget * 4

	defaults := retrieval.DefaultOptions()
	hits, err := p.Search(ctx, query, SearchParams{Limit: defaults.MaxResults, Threshold: defaults.Threshold})
	if err != nil {
		return nil, err
	}
	direct := make(map[string]bool, len(hits))
	for _, c := range hits {
		direct[c.Memory.ID] = true
	}

	candidates, err := p.Search(ctx, query, SearchParams{WithLinks: true})
	if err != nil {
		return nil, err
	}

	// Candidates arrive sorted by score; pack greedily.
	result := &ContextResult{Budget: budget, Memories: []ContextMemory{}}
	used := 0

	for _, c := range candidates {
		text := c.Memory.Text
		entry := ContextMemory{
			ID:       c.Memory.ID,
			Role:     c.Memory.Role,
			Platform: c.Memory.Platform,
			Score:    math.Round(c.Score*100) / 100,
			Linked:   !direct[c.Memory.ID],
		}
		if used+len(text) <= charBudget {
			// Fits entirely
			entry.Text = text
			result.Memories = append(result.Memories, entry)
			used += len(text)
		} else if remaining := charBudget - used; remaining >= 100 {
			// Partial fit: excerpt
			entry.Text = excerpt(text, remaining)
			entry.Excerpt = true
			result.Memories = append(result.Memories, entry)
			used += remaining
			break // budget full
		} else {
			break
		}
	}

	// Convert used chars back to approximate tokens
	result.Used = used / 4
	return result, nil
}

// excerpt cuts text to at most n bytes on a rune boundary and marks the cut.
func excerpt(text string, n int) string {
	if n >= len(text) {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "..."
}
