// Package views provides TUI view components for the tide application.
package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/render"
	"github.com/tide-dev/tide/internal/tui"
)

// ============================================================================
// Message Types
// ============================================================================

// SendMsg is sent when the user submits input.
type SendMsg struct {
	Text string
}

// BackMsg signals that the user wants to leave the current view.
type BackMsg struct{}

// PolishRequestMsg asks for the current input to be rewritten.
type PolishRequestMsg struct {
	Text string
}

// DismissNoticeMsg asks for the notice line to be cleared.
type DismissNoticeMsg struct{}

// ============================================================================
// ChatModel
// ============================================================================

// ChatModel is the view model for one session's transcript and input.
type ChatModel struct {
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *render.Renderer

	title        string
	modelID      string
	notice       string
	messages     []model.MessageWithParts
	waiting      bool
	waitingSince time.Time
	polishing    bool

	prompts []string // newest first
	histIdx int      // -1 when not recalling
	width   int
	height  int
}

// NewChatModel creates a ChatModel sized for width x height.
func NewChatModel(renderer *render.Renderer, width, height int) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Type your message... (Enter to send)"
	ta.CharLimit = 20000
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = tui.DefaultKeyMap.NewLine
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = tui.SpinnerStyle

	m := ChatModel{
		textarea: ta,
		viewport: viewport.New(20, 5),
		spinner:  sp,
		renderer: renderer,
		histIdx:  -1,
	}
	m.SetSize(width, height)
	return m
}

// Init returns the initial command for the chat view.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// SetSize resizes the view. The transcript is re-rendered.
func (m *ChatModel) SetSize(width, height int) {
	m.width = width
	m.height = height

	// Reserve space for: header (2 lines), status (1), textarea (3), footer (1), box (2)
	vpHeight := height - 10
	if vpHeight < 5 {
		vpHeight = 5
	}
	vpWidth := width - 4
	if vpWidth < 20 {
		vpWidth = 20
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(vpWidth)
	m.refresh()
}

// SetRenderer swaps the transcript renderer.
func (m *ChatModel) SetRenderer(r *render.Renderer) {
	m.renderer = r
	m.refresh()
}

// SetHeader sets the session title and model id shown above the transcript.
func (m *ChatModel) SetHeader(title, modelID string) {
	m.title = title
	m.modelID = modelID
}

// SetTranscript replaces the displayed messages and waiting state.
func (m *ChatModel) SetTranscript(msgs []model.MessageWithParts, waiting bool, since time.Time) {
	m.messages = msgs
	m.waiting = waiting
	m.waitingSince = since
	m.refresh()
}

// SetNotice sets the notice line. Empty hides it.
func (m *ChatModel) SetNotice(notice string) {
	m.notice = notice
}

// SetPrompts sets the prompts offered for recall, newest first.
func (m *ChatModel) SetPrompts(prompts []string) {
	m.prompts = prompts
	m.histIdx = -1
}

// AddPrompt records a just-sent prompt for recall.
func (m *ChatModel) AddPrompt(text string) {
	m.prompts = append([]string{text}, m.prompts...)
	m.histIdx = -1
}

// SetInput replaces the input text.
func (m *ChatModel) SetInput(text string) {
	m.polishing = false
	m.textarea.SetValue(text)
}

// PolishFailed ends a pending polish without touching the input.
func (m *ChatModel) PolishFailed() {
	m.polishing = false
}

// Input returns the current input text.
func (m ChatModel) Input() string {
	return m.textarea.Value()
}

func (m *ChatModel) refresh() {
	if m.renderer == nil {
		return
	}
	atBottom := m.viewport.AtBottom()
	content := m.renderer.Transcript(m.messages, m.waiting)
	if content == "" {
		content = tui.DimStyle.Render("No messages yet. Start the conversation!")
	}
	m.viewport.SetContent(content)
	if atBottom || m.waiting {
		m.viewport.GotoBottom()
	}
}

// Update handles messages for the chat view.
func (m ChatModel) Update(msg tea.Msg) (ChatModel, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	km := tui.DefaultKeyMap

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, km.Enter):
			content := strings.TrimSpace(m.textarea.Value())
			if content == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.histIdx = -1
			return m, func() tea.Msg {
				return SendMsg{Text: content}
			}

		case key.Matches(msg, km.Escape):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, km.Polish):
			content := strings.TrimSpace(m.textarea.Value())
			if content == "" || m.polishing {
				return m, nil
			}
			m.polishing = true
			return m, func() tea.Msg {
				return PolishRequestMsg{Text: content}
			}

		case key.Matches(msg, km.Dismiss):
			return m, func() tea.Msg {
				return DismissNoticeMsg{}
			}

		case msg.String() == tui.KeyUp && (m.textarea.Value() == "" || m.histIdx >= 0):
			if m.histIdx+1 < len(m.prompts) {
				m.histIdx++
				m.textarea.SetValue(m.prompts[m.histIdx])
			}
			return m, nil

		case msg.String() == tui.KeyDown && m.histIdx >= 0:
			m.histIdx--
			if m.histIdx < 0 {
				m.textarea.Reset()
			} else {
				m.textarea.SetValue(m.prompts[m.histIdx])
			}
			return m, nil

		case msg.String() == "pgup" || msg.String() == "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the chat view.
func (m ChatModel) View() string {
	var b strings.Builder

	header := tui.TitleStyle.Render(m.title)
	if m.modelID != "" {
		header += tui.DimStyle.Render(" · " + m.modelID)
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")

	if m.polishing {
		b.WriteString(tui.DimStyle.Render(m.textarea.View()))
	} else {
		b.WriteString(m.textarea.View())
	}
	b.WriteString("\n")

	footer := tui.DimStyle.Render("Enter: Send · Ctrl+J: New line · Ctrl+P: Polish · PgUp/PgDn: Scroll · Esc: Sessions")
	b.WriteString(footer)

	return tui.BoxStyle.Width(m.width - 2).Render(b.String())
}

func (m ChatModel) statusLine() string {
	var parts []string
	if m.waiting {
		elapsed := time.Since(m.waitingSince).Round(time.Second)
		parts = append(parts, fmt.Sprintf("%s %s", m.spinner.View(), tui.DimStyle.Render(elapsed.String())))
	}
	if m.polishing {
		parts = append(parts, tui.DimStyle.Render("Polishing..."))
	}
	if m.notice != "" {
		parts = append(parts, tui.WarningStyle.Render(m.notice)+tui.DimStyle.Render(" (ctrl+x)"))
	}
	return strings.Join(parts, "  ")
}
