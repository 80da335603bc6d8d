package agent

import (
	"strings"

	"github.com/m-mizutani/dossier/pkg/model"
)

// Synthesize annotates draft with the records it mentions. A record is
// mentioned when its id or title appears in the draft, ignoring case. Tools
// are never consulted; on any internal failure the draft is returned as is.
func Synthesize(draft string, results []*model.ToolResult) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = draft
		}
	}()

	lower := strings.ToLower(draft)
	seen := make(map[string]bool)
	var cited []model.Citation

	for _, result := range results {
		if result == nil {
			continue
		}
		for _, c := range result.Citations() {
			if c.ID == "" || seen[c.ID] {
				continue
			}
			if !mentions(lower, c) {
				continue
			}
			seen[c.ID] = true
			cited = append(cited, c)
		}
	}

	if len(cited) == 0 {
		return draft
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(draft, "\n "))
	b.WriteString("\n\nSources:\n")
	for _, c := range cited {
		b.WriteString("- ")
		b.WriteString(c.ID)
		if c.Title != "" {
			b.WriteString(": ")
			b.WriteString(c.Title)
		}
		if span := c.DateSpan(); span != "" {
			b.WriteString(" (")
			b.WriteString(span)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func mentions(lowerDraft string, c model.Citation) bool {
	if strings.Contains(lowerDraft, strings.ToLower(c.ID)) {
		return true
	}
	title := strings.ToLower(strings.TrimSpace(c.Title))
	return title != "" && strings.Contains(lowerDraft, title)
}
