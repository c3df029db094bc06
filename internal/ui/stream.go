// Package ui provides terminal output components for tide.
// This file implements the incremental reply printer used by `tide send`.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/render"
)

const waitingLine = "Waiting for response..."

// StreamPrinter writes an assistant reply to a terminal or pipe while it is
// being generated. Text is written as it grows; tool calls and reasoning
// are written as one line per state change.
type StreamPrinter struct {
	mu        sync.Mutex
	w         io.Writer
	r         *render.Renderer
	isTTY     bool
	reasoning bool
	dim       lipgloss.Style

	started      time.Time
	printed      map[string]string // part id -> content already written
	toolStatus   map[string]string // part id -> last status written
	current      string            // part currently being written
	lineOpen     bool
	waitingDrawn bool
}

// NewStreamPrinter creates a printer writing to w. Colors and the waiting
// line are used only when w is a terminal.
func NewStreamPrinter(w io.Writer, showReasoning bool) *StreamPrinter {
	isTTY := false
	if f, ok := w.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	p := &StreamPrinter{
		w:          w,
		isTTY:      isTTY,
		reasoning:  showReasoning,
		started:    time.Now(),
		printed:    make(map[string]string),
		toolStatus: make(map[string]string),
		r:          render.Plain(),
		dim:        lipgloss.NewStyle(),
	}
	if isTTY {
		if r, err := render.New("notty", 80); err == nil {
			p.r = r
		}
		p.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	}
	return p
}

// Waiting shows or hides the waiting line. It is a no-op off a terminal.
func (p *StreamPrinter) Waiting(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isTTY {
		return
	}
	switch {
	case on && !p.waitingDrawn && !p.lineOpen:
		fmt.Fprint(p.w, p.dim.Render(waitingLine))
		p.waitingDrawn = true
	case !on:
		p.clearWaiting()
	}
}

func (p *StreamPrinter) clearWaiting() {
	if p.waitingDrawn {
		fmt.Fprint(p.w, "\r\033[2K")
		p.waitingDrawn = false
	}
}

// Notice writes a one-line notice such as the slow-response warning.
func (p *StreamPrinter) Notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == "" {
		return
	}
	p.clearWaiting()
	p.endLine()
	fmt.Fprintln(p.w, p.dim.Render(text))
}

// Update writes whatever is new in m since the previous call. Only
// assistant messages are printed.
func (p *StreamPrinter) Update(m model.MessageWithParts) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.Info.Role != model.RoleAssistant {
		return
	}
	for _, part := range m.Parts {
		if !render.Displayable(part) {
			continue
		}
		switch v := part.(type) {
		case model.TextPart:
			p.writeGrowing(v.ID, v.Text, false)
		case model.ReasoningPart:
			if p.reasoning {
				p.writeGrowing(v.ID, v.Text, true)
			}
		case model.ToolPart:
			p.writeTool(v)
		}
	}
}

// writeGrowing writes the unseen suffix of content. Content that no longer
// extends what was written is left alone; Finish does not reprint it.
func (p *StreamPrinter) writeGrowing(id, content string, dim bool) {
	prev := p.printed[id]
	if len(content) <= len(prev) || !strings.HasPrefix(content, prev) {
		return
	}
	p.clearWaiting()
	if p.current != id {
		p.endLine()
		p.current = id
		if dim {
			fmt.Fprint(p.w, p.dim.Render("Thinking: "))
		}
	}
	suffix := content[len(prev):]
	if dim {
		suffix = p.dim.Render(suffix)
	}
	fmt.Fprint(p.w, suffix)
	p.printed[id] = content
	p.lineOpen = !strings.HasSuffix(content, "\n")
}

func (p *StreamPrinter) writeTool(t model.ToolPart) {
	status := t.Status()
	if p.toolStatus[t.ID] == status {
		return
	}
	p.toolStatus[t.ID] = status
	p.clearWaiting()
	p.endLine()
	p.current = t.ID
	fmt.Fprintln(p.w, p.r.Part(t))
}

func (p *StreamPrinter) endLine() {
	if p.lineOpen {
		fmt.Fprintln(p.w)
		p.lineOpen = false
	}
}

// Finish terminates the output. On a terminal it adds a summary line with
// the model and the elapsed time.
func (p *StreamPrinter) Finish(info *model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearWaiting()
	p.endLine()
	if !p.isTTY || info == nil {
		return
	}
	summary := formatDuration(time.Since(p.started))
	if info.ModelID != "" {
		summary = info.ModelID + " · " + summary
	}
	fmt.Fprintln(p.w, p.dim.Render(summary))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}
