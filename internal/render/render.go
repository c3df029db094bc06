package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/tide-dev/tide/internal/model"
)

// Color constants shared with the TUI.
const (
	primaryColor   = "#0EA5E9" // sky
	secondaryColor = "#14B8A6" // teal
	warningColor   = "#F59E0B"
	errorColor     = "#EF4444"
	dimColor       = "#6B7280"
)

type styles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	dim       lipgloss.Style
	reasoning lipgloss.Style
	success   lipgloss.Style
	warning   lipgloss.Style
	failure   lipgloss.Style
}

func plainStyles() styles {
	plain := lipgloss.NewStyle()
	return styles{plain, plain, plain, plain, plain, plain, plain}
}

func colorStyles() styles {
	return styles{
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color(secondaryColor)).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor)).Bold(true),
		dim:       lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor)),
		reasoning: lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor)).Italic(true),
		success:   lipgloss.NewStyle().Foreground(lipgloss.Color(secondaryColor)),
		warning:   lipgloss.NewStyle().Foreground(lipgloss.Color(warningColor)),
		failure:   lipgloss.NewStyle().Foreground(lipgloss.Color(errorColor)),
	}
}

// Renderer formats messages for the terminal. Text parts are rendered as
// markdown through glamour unless the renderer is plain.
type Renderer struct {
	md    *glamour.TermRenderer
	width int
	st    styles
}

// New returns a Renderer using a glamour standard style ("dark", "light",
// "notty", ...) and word-wrapping at width.
func New(style string, width int) (*Renderer, error) {
	if style == "" {
		style = "dark"
	}
	if width <= 0 {
		width = 80
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &Renderer{md: md, width: width, st: colorStyles()}, nil
}

// Plain returns a Renderer that emits text without markdown rendering or
// styling.
func Plain() *Renderer {
	return &Renderer{width: 80, st: plainStyles()}
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Markdown renders text as markdown, falling back to the raw text.
func (r *Renderer) Markdown(text string) string {
	if r.md == nil {
		return strings.TrimRight(text, "\n")
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Transcript renders the displayable messages of msgs, followed by the
// waiting indicator when waiting is set.
func (r *Renderer) Transcript(msgs []model.MessageWithParts, waiting bool) string {
	var b strings.Builder
	for i, m := range Visible(msgs) {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Message(m))
	}
	if waiting {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.st.dim.Render("Waiting for response..."))
	}
	return b.String()
}

// Message renders one message: a role header followed by its displayable
// parts.
func (r *Renderer) Message(m model.MessageWithParts) string {
	var b strings.Builder
	b.WriteString(r.header(m.Info))
	for _, p := range m.Parts {
		if !Displayable(p) {
			continue
		}
		b.WriteString("\n")
		b.WriteString(r.Part(p))
	}
	return b.String()
}

func (r *Renderer) header(info model.Message) string {
	if info.Role == model.RoleUser {
		label := "You"
		if info.IsProvisional() {
			label += " (sending)"
		}
		return r.st.user.Render(label)
	}
	label := "Assistant"
	if info.ModelID != "" {
		label += " · " + info.ModelID
	}
	return r.st.assistant.Render(label)
}

// Part renders one displayable part. Non-displayable parts render as "".
func (r *Renderer) Part(p model.Part) string {
	switch v := p.(type) {
	case model.TextPart:
		if !Displayable(v) {
			return ""
		}
		return r.Markdown(v.Text)
	case model.ReasoningPart:
		if !Displayable(v) {
			return ""
		}
		return r.st.reasoning.Render("Thinking: " + strings.TrimSpace(v.Text))
	case model.ToolPart:
		return r.tool(v)
	default:
		return ""
	}
}

func (r *Renderer) tool(p model.ToolPart) string {
	line := fmt.Sprintf("%s %s", r.toolIcon(p.Status()), p.Title())
	if p.Title() != p.Tool && p.Tool != "" {
		line += r.st.dim.Render(" (" + p.Tool + ")")
	}
	if p.State != nil && p.State.Status == model.ToolStatusError && p.State.Error != "" {
		line += "\n  " + r.st.failure.Render(p.State.Error)
	}
	return line
}

// ToolIcon returns the status marker for a tool status.
func ToolIcon(status string) string {
	switch status {
	case model.ToolStatusCompleted:
		return "✓"
	case model.ToolStatusError:
		return "✗"
	case model.ToolStatusRunning:
		return "◐"
	default:
		return "○"
	}
}

func (r *Renderer) toolIcon(status string) string {
	icon := ToolIcon(status)
	switch status {
	case model.ToolStatusCompleted:
		return r.st.success.Render(icon)
	case model.ToolStatusError:
		return r.st.failure.Render(icon)
	case model.ToolStatusRunning:
		return r.st.warning.Render(icon)
	default:
		return r.st.dim.Render(icon)
	}
}
