package embedding

import (
	"strings"

	"github.com/rcliao/assoc-memory/internal/model"
)

// BuildEnhancedText is the text a memory is embedded from: the raw text
// followed by whichever of keywords, tags and context are present.
func BuildEnhancedText(m *model.Memory) string {
	parts := []string{m.Text}
	if len(m.Keywords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(m.Keywords, " "))
	}
	if len(m.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(m.Tags, " "))
	}
	if m.Context != "" {
		parts = append(parts, "Context: "+m.Context)
	}
	return strings.Join(parts, ". ")
}
