package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON returns the first JSON object or array in text, tolerating
// surrounding prose and markdown code fences.
func extractJSON(text string) (json.RawMessage, error) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON in response", ErrOracle)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrOracle, err)
	}
	return raw, nil
}

type rawVerdict struct {
	MemoryID   string   `json:"memory_id"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// parseLinkVerdicts accepts {"links":[...]} or a bare array. Entries without
// an id or with confidence outside [0,1] are dropped.
func parseLinkVerdicts(text string) ([]LinkVerdict, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var entries []rawVerdict
	if raw[0] == '[' {
		err = json.Unmarshal(raw, &entries)
	} else {
		var wrapped struct {
			Links *[]rawVerdict `json:"links"`
		}
		err = json.Unmarshal(raw, &wrapped)
		if err == nil && wrapped.Links == nil {
			err = fmt.Errorf("missing links field")
		}
		if wrapped.Links != nil {
			entries = *wrapped.Links
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: link verdicts: %v", ErrOracle, err)
	}

	out := make([]LinkVerdict, 0, len(entries))
	for _, e := range entries {
		if e.MemoryID == "" || e.Confidence == nil || *e.Confidence < 0 || *e.Confidence > 1 {
			continue
		}
		out = append(out, LinkVerdict{MemoryID: e.MemoryID, Confidence: *e.Confidence, Reason: e.Reason})
	}
	return out, nil
}

// parseEvolutionDecision requires should_evolve and reason.
func parseEvolutionDecision(text string) (EvolutionDecision, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return EvolutionDecision{}, err
	}

	var d struct {
		ShouldEvolve *bool    `json:"should_evolve"`
		Keywords     []string `json:"keywords"`
		Tags         []string `json:"tags"`
		Context      *string  `json:"context"`
		Reason       *string  `json:"reason"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return EvolutionDecision{}, fmt.Errorf("%w: evolution decision: %v", ErrOracle, err)
	}
	if d.ShouldEvolve == nil {
		return EvolutionDecision{}, fmt.Errorf("%w: evolution decision: missing should_evolve", ErrOracle)
	}
	if d.Reason == nil {
		return EvolutionDecision{}, fmt.Errorf("%w: evolution decision: missing reason", ErrOracle)
	}
	return EvolutionDecision{
		ShouldEvolve: *d.ShouldEvolve,
		Keywords:     d.Keywords,
		Tags:         d.Tags,
		Context:      d.Context,
		Reason:       *d.Reason,
	}, nil
}

func parseEnrichment(text string) (Enrichment, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Enrichment{}, err
	}
	var e Enrichment
	if err := json.Unmarshal(raw, &e); err != nil {
		return Enrichment{}, fmt.Errorf("%w: enrichment: %v", ErrOracle, err)
	}
	if len(e.Keywords) == 0 && len(e.Tags) == 0 && e.Context == "" {
		return Enrichment{}, fmt.Errorf("%w: enrichment: empty metadata", ErrOracle)
	}
	return e, nil
}
