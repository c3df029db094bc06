// Package render turns a transcript into terminal text.
package render

import (
	"strings"

	"github.com/tide-dev/tide/internal/model"
)

// Displayable reports whether a part is shown to the user. Step markers,
// snapshots, patches, agent and retry metadata and unknown kinds are
// carried in the transcript but never rendered.
func Displayable(p model.Part) bool {
	switch v := p.(type) {
	case model.TextPart:
		return !v.Synthetic && strings.TrimSpace(v.Text) != ""
	case model.ReasoningPart:
		return strings.TrimSpace(v.Text) != ""
	case model.ToolPart:
		return true
	default:
		return false
	}
}

// Visible returns the messages that have at least one displayable part,
// each holding only its displayable parts.
func Visible(msgs []model.MessageWithParts) []model.MessageWithParts {
	out := make([]model.MessageWithParts, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]model.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			if Displayable(p) {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, model.MessageWithParts{Info: m.Info, Parts: parts})
	}
	return out
}

// AssistantText returns the concatenated text parts of a message.
func AssistantText(m model.MessageWithParts) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(model.TextPart); ok && !t.Synthetic {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
