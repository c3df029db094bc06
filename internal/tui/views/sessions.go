package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/tui"
)

// ============================================================================
// Message Types
// ============================================================================

// OpenSessionMsg is sent when the user opens a session.
type OpenSessionMsg struct {
	ID string
}

// NewSessionMsg is sent when the user asks for a new session.
type NewSessionMsg struct{}

// DeleteSessionMsg is sent once the user confirmed a delete.
type DeleteSessionMsg struct {
	ID string
}

// RenameSessionMsg is sent when the user submits a new title.
type RenameSessionMsg struct {
	ID    string
	Title string
}

// RefreshSessionsMsg asks for the list to be reloaded from the backend.
type RefreshSessionsMsg struct{}

// OpenSettingsMsg asks for the settings view.
type OpenSettingsMsg struct{}

// ============================================================================
// SessionsModel
// ============================================================================

type sessionsMode int

const (
	modeBrowse sessionsMode = iota
	modeRename
	modeConfirmDelete
)

type sessionItem struct {
	s model.Session
}

func (i sessionItem) Title() string { return tui.SessionTitle(i.s) }

func (i sessionItem) Description() string {
	if i.s.Time.Updated == 0 {
		return i.s.ID
	}
	updated := time.UnixMilli(i.s.Time.Updated).Local().Format("2006-01-02 15:04")
	return fmt.Sprintf("%s · updated %s", i.s.ID, updated)
}

func (i sessionItem) FilterValue() string { return i.s.Title }

// SessionsModel is the view model for the session list.
type SessionsModel struct {
	list   list.Model
	input  textinput.Model
	mode   sessionsMode
	target string
	cached bool

	// Err is shown below the list.
	Err error

	width  int
	height int
}

// NewSessionsModel creates an empty session list.
func NewSessionsModel(width, height int) SessionsModel {
	km := tui.DefaultKeyMap

	l := list.New(nil, list.NewDefaultDelegate(), width, height)
	l.Title = "Sessions"
	l.Styles.Title = tui.TitleStyle
	l.SetStatusBarItemName("session", "sessions")
	l.KeyMap.ForceQuit.SetEnabled(false)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{km.NewSession, km.Delete, km.Rename, km.Settings}
	}
	l.AdditionalFullHelpKeys = func() []key.Binding {
		return []key.Binding{km.NewSession, km.Delete, km.Rename, km.Refresh, km.Settings}
	}

	ti := textinput.New()
	ti.Placeholder = "new title"
	ti.CharLimit = 200
	ti.Prompt = "Title: "

	m := SessionsModel{list: l, input: ti}
	m.SetSize(width, height)
	return m
}

// Init returns the initial command for the sessions view.
func (m SessionsModel) Init() tea.Cmd {
	return nil
}

// SetSize resizes the list.
func (m *SessionsModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	h := height - 4
	if h < 5 {
		h = 5
	}
	m.list.SetSize(width-2, h)
	m.input.Width = width - 12
}

// SetSessions replaces the list, newest first. Cached marks a list read
// from the local history store.
func (m *SessionsModel) SetSessions(sessions []model.Session, cached bool) tea.Cmd {
	sorted := append([]model.Session(nil), sessions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Updated > sorted[j].Time.Updated
	})
	items := make([]list.Item, len(sorted))
	for i, s := range sorted {
		items[i] = sessionItem{s: s}
	}
	m.cached = cached
	return m.list.SetItems(items)
}

// Upsert inserts or replaces one session and keeps the list ordered.
func (m *SessionsModel) Upsert(s model.Session) tea.Cmd {
	sessions := m.Sessions()
	replaced := false
	for i := range sessions {
		if sessions[i].ID == s.ID {
			sessions[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, s)
	}
	selected := m.SelectedID()
	cmd := m.SetSessions(sessions, m.cached)
	m.Select(selected)
	return cmd
}

// Remove drops a session from the list.
func (m *SessionsModel) Remove(id string) {
	for i, it := range m.list.Items() {
		if it.(sessionItem).s.ID == id {
			m.list.RemoveItem(i)
			return
		}
	}
}

// Sessions returns the listed sessions in display order.
func (m SessionsModel) Sessions() []model.Session {
	items := m.list.Items()
	out := make([]model.Session, 0, len(items))
	for _, it := range items {
		out = append(out, it.(sessionItem).s)
	}
	return out
}

// Select moves the cursor to the session with id, if listed.
func (m *SessionsModel) Select(id string) {
	for i, it := range m.list.Items() {
		if it.(sessionItem).s.ID == id {
			m.list.Select(i)
			return
		}
	}
}

// SelectedID returns the id under the cursor, or "".
func (m SessionsModel) SelectedID() string {
	if it, ok := m.list.SelectedItem().(sessionItem); ok {
		return it.s.ID
	}
	return ""
}

// Update handles messages for the sessions view.
func (m SessionsModel) Update(msg tea.Msg) (SessionsModel, tea.Cmd) {
	km := tui.DefaultKeyMap

	keyMsg, isKey := msg.(tea.KeyMsg)
	if !isKey {
		var cmd tea.Cmd
		if m.mode == modeRename {
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch m.mode {
	case modeConfirmDelete:
		m.mode = modeBrowse
		if key.Matches(keyMsg, km.Confirm) {
			id := m.target
			return m, func() tea.Msg {
				return DeleteSessionMsg{ID: id}
			}
		}
		return m, nil

	case modeRename:
		switch {
		case key.Matches(keyMsg, km.Enter):
			title := strings.TrimSpace(m.input.Value())
			m.mode = modeBrowse
			m.input.Blur()
			if title == "" {
				return m, nil
			}
			id := m.target
			return m, func() tea.Msg {
				return RenameSessionMsg{ID: id, Title: title}
			}
		case key.Matches(keyMsg, km.Escape):
			m.mode = modeBrowse
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	// While the filter prompt is open every key belongs to the list.
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(keyMsg, km.Enter):
		if id := m.SelectedID(); id != "" {
			return m, func() tea.Msg {
				return OpenSessionMsg{ID: id}
			}
		}
		return m, nil

	case key.Matches(keyMsg, km.NewSession):
		return m, func() tea.Msg {
			return NewSessionMsg{}
		}

	case key.Matches(keyMsg, km.Delete):
		if id := m.SelectedID(); id != "" {
			m.target = id
			m.mode = modeConfirmDelete
		}
		return m, nil

	case key.Matches(keyMsg, km.Rename):
		if it, ok := m.list.SelectedItem().(sessionItem); ok {
			m.target = it.s.ID
			m.mode = modeRename
			m.input.SetValue(it.s.Title)
			m.input.CursorEnd()
			return m, m.input.Focus()
		}
		return m, nil

	case key.Matches(keyMsg, km.Refresh):
		return m, func() tea.Msg {
			return RefreshSessionsMsg{}
		}

	case key.Matches(keyMsg, km.Settings):
		return m, func() tea.Msg {
			return OpenSettingsMsg{}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the sessions view.
func (m SessionsModel) View() string {
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n")

	switch m.mode {
	case modeRename:
		b.WriteString(m.input.View())
	case modeConfirmDelete:
		b.WriteString(tui.WarningStyle.Render(fmt.Sprintf("Delete %s? (y/N)", m.target)))
	default:
		switch {
		case m.Err != nil:
			b.WriteString(tui.ErrorStyle.Render("Error: " + m.Err.Error()))
		case m.cached:
			b.WriteString(tui.DimStyle.Render("Showing cached sessions, refreshing..."))
		}
	}
	return b.String()
}
