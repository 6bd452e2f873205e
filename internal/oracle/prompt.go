package oracle

import (
	"fmt"
	"strings"

	"github.com/rcliao/assoc-memory/internal/model"
)

const linkSystemPrompt = `You maintain a personal knowledge graph of conversation snippets.
Decide which candidate memories are genuinely related to the source memory.
Reply with JSON only: {"links":[{"memory_id":"...","confidence":0.0-1.0,"reason":"..."}]}.
Omit candidates that are unrelated.`

const evolutionSystemPrompt = `You curate metadata for a personal knowledge graph.
Given an existing memory and a new related memory, decide whether the existing memory's
keywords, tags or context should be refined. Be conservative: only evolve when the new
memory adds information that changes how the existing one should be found.
Reply with JSON only: {"should_evolve":bool,"keywords":[...],"tags":[...],"context":"...","reason":"..."}.
Omit any field you would not change.`

const enrichSystemPrompt = `You extract semantic metadata from conversation snippets.
Reply with JSON only: {"keywords":[...],"tags":[...],"context":"one sentence"}.
Use 3-7 lower-case keywords and 1-4 broad tags.`

func linkPrompt(source *model.Memory, candidates []model.Candidate) string {
	var sb strings.Builder
	sb.WriteString("Source memory:\n")
	writeMemory(&sb, source)
	sb.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "\n[%s] similarity %.2f\n", c.Memory.ID, c.Score)
		writeMemory(&sb, c.Memory)
	}
	return sb.String()
}

func evolutionPrompt(target, newMem *model.Memory) string {
	var sb strings.Builder
	sb.WriteString("Existing memory:\n")
	writeMemory(&sb, target)
	sb.WriteString("\nNew memory:\n")
	writeMemory(&sb, newMem)
	return sb.String()
}

func enrichPrompt(m *model.Memory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: %s\nPlatform: %s\n\n%s\n", m.Role, m.Platform, m.Text)
	return sb.String()
}

func writeMemory(sb *strings.Builder, m *model.Memory) {
	fmt.Fprintf(sb, "Text: %s\n", m.Text)
	if len(m.Keywords) > 0 {
		fmt.Fprintf(sb, "Keywords: %s\n", strings.Join(m.Keywords, ", "))
	}
	if len(m.Tags) > 0 {
		fmt.Fprintf(sb, "Tags: %s\n", strings.Join(m.Tags, ", "))
	}
	if m.Context != "" {
		fmt.Fprintf(sb, "Context: %s\n", m.Context)
	}
}
