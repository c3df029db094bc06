package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tide-dev/tide/internal/config"
	"github.com/tide-dev/tide/internal/tui"
)

// SaveSettingsMsg carries the edited config values keyed by dotted key.
type SaveSettingsMsg struct {
	Values map[string]string
}

// SettingsModel is a form over the editable config keys.
type SettingsModel struct {
	keys   []string
	inputs []textinput.Model
	focus  int

	// Status is shown under the form, Err in place of it when set.
	Status string
	Err    error

	width  int
	height int
}

// NewSettingsModel creates a form prefilled from cfg.
func NewSettingsModel(cfg *config.Config, width, height int) SettingsModel {
	m := SettingsModel{keys: config.Keys, width: width, height: height}
	for _, k := range m.keys {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 4000
		ti.Width = width - 32
		if v, err := cfg.Get(k); err == nil {
			ti.SetValue(v)
		}
		if k == "polish.api_key" {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		m.inputs = append(m.inputs, ti)
	}
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

// Init returns the initial command for the settings view.
func (m SettingsModel) Init() tea.Cmd {
	return textinput.Blink
}

// SetSize resizes the form.
func (m *SettingsModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	for i := range m.inputs {
		m.inputs[i].Width = width - 32
	}
}

// Values returns the current field values keyed by dotted key.
func (m SettingsModel) Values() map[string]string {
	out := make(map[string]string, len(m.keys))
	for i, k := range m.keys {
		out[k] = m.inputs[i].Value()
	}
	return out
}

func (m *SettingsModel) move(delta int) tea.Cmd {
	if len(m.inputs) == 0 {
		return nil
	}
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

// Update handles messages for the settings view.
func (m SettingsModel) Update(msg tea.Msg) (SettingsModel, tea.Cmd) {
	km := tui.DefaultKeyMap

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, km.Save):
			values := m.Values()
			return m, func() tea.Msg {
				return SaveSettingsMsg{Values: values}
			}
		case key.Matches(keyMsg, km.Escape):
			return m, func() tea.Msg {
				return BackMsg{}
			}
		case key.Matches(keyMsg, km.Tab), key.Matches(keyMsg, km.Enter):
			return m, m.move(1)
		case keyMsg.String() == "shift+tab" || keyMsg.String() == tui.KeyUp:
			return m, m.move(-1)
		}
	}

	if len(m.inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// View renders the settings view.
func (m SettingsModel) View() string {
	var b strings.Builder
	b.WriteString(tui.TitleStyle.Render("Settings"))
	b.WriteString("\n\n")

	for i, k := range m.keys {
		label := fmt.Sprintf("%-24s", k)
		if i == m.focus {
			label = tui.SelectedStyle.Render("> " + label)
		} else {
			label = tui.DimStyle.Render("  " + label)
		}
		b.WriteString(label)
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.Err != nil:
		b.WriteString(tui.ErrorStyle.Render("Error: " + m.Err.Error()))
	case m.Status != "":
		b.WriteString(tui.SuccessStyle.Render(m.Status))
	}
	b.WriteString("\n")
	b.WriteString(tui.DimStyle.Render("Tab/Enter: Next · Shift+Tab: Previous · Ctrl+S: Save · Esc: Back"))

	return tui.BoxStyle.Width(m.width - 2).Render(b.String())
}
