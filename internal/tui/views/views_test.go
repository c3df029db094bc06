package views

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tide-dev/tide/internal/config"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/render"
	"github.com/tide-dev/tide/internal/testutil"
)

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func msgOf(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return cmd()
}

func testSessions() []model.Session {
	return []model.Session{
		{ID: "old", Title: "Old", Time: model.SessionTime{Created: 1, Updated: 10}},
		{ID: "new", Title: "New", Time: model.SessionTime{Created: 2, Updated: 20}},
	}
}

func TestSessionsNewestFirst(t *testing.T) {
	m := NewSessionsModel(80, 24)
	m.SetSessions(testSessions(), false)

	got := m.Sessions()
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("order = %+v", got)
	}

	m.Upsert(model.Session{ID: "old", Title: "Bumped", Time: model.SessionTime{Created: 1, Updated: 30}})
	if got := m.Sessions(); got[0].ID != "old" || got[0].Title != "Bumped" {
		t.Errorf("after upsert = %+v", got)
	}

	m.Remove("new")
	if got := m.Sessions(); len(got) != 1 {
		t.Errorf("after remove = %+v", got)
	}
}

func TestSessionsKeys(t *testing.T) {
	m := NewSessionsModel(80, 24)
	m.SetSessions(testSessions(), false)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if open, ok := msgOf(t, cmd).(OpenSessionMsg); !ok || open.ID != "new" {
		t.Errorf("enter = %#v", open)
	}

	_, cmd = m.Update(runeKey("n"))
	if _, ok := msgOf(t, cmd).(NewSessionMsg); !ok {
		t.Error("n should request a new session")
	}

	m, cmd = m.Update(runeKey("d"))
	if cmd != nil {
		t.Error("d should only ask for confirmation")
	}
	_, cmd = m.Update(runeKey("y"))
	if del, ok := msgOf(t, cmd).(DeleteSessionMsg); !ok || del.ID != "new" {
		t.Errorf("confirm = %#v", del)
	}
}

func TestSessionsDeleteCancelled(t *testing.T) {
	m := NewSessionsModel(80, 24)
	m.SetSessions(testSessions(), false)

	m, _ = m.Update(runeKey("d"))
	m, cmd := m.Update(runeKey("x"))
	if cmd != nil {
		t.Error("any other key should cancel the delete")
	}
	if m.mode != modeBrowse {
		t.Errorf("mode = %d, want browse", m.mode)
	}
}

func TestChatEnterSends(t *testing.T) {
	m := NewChatModel(render.Plain(), 80, 24)
	m.SetInput("  hello  ")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if send, ok := msgOf(t, cmd).(SendMsg); !ok || send.Text != "hello" {
		t.Errorf("enter = %#v", send)
	}
	if m.Input() != "" {
		t.Errorf("input not cleared: %q", m.Input())
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("empty input must not send")
	}
}

func TestChatPromptRecall(t *testing.T) {
	m := NewChatModel(render.Plain(), 80, 24)
	m.SetPrompts([]string{"second", "first"})

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.Input() != "second" {
		t.Fatalf("first up = %q", m.Input())
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.Input() != "first" {
		t.Fatalf("second up = %q", m.Input())
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.Input() != "" {
		t.Errorf("down past newest = %q", m.Input())
	}
}

func TestChatPolishOnce(t *testing.T) {
	m := NewChatModel(render.Plain(), 80, 24)
	m.SetInput("draft")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	if req, ok := msgOf(t, cmd).(PolishRequestMsg); !ok || req.Text != "draft" {
		t.Errorf("ctrl+p = %#v", req)
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	if cmd != nil {
		t.Error("a second polish must wait for the first")
	}
}

func TestChatShowsTranscript(t *testing.T) {
	m := NewChatModel(render.Plain(), 80, 24)
	m.SetHeader("My session", "mock-echo-1")
	m.SetTranscript([]model.MessageWithParts{
		testutil.AssistantMessage("s1", "m1", testutil.TextPart("s1", "m1", "p1", "Hello there")),
	}, false, time.Time{})

	view := m.View()
	for _, want := range []string{"My session", "mock-echo-1", "Hello there"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSettingsSave(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chat.Model = "gpt-x"
	m := NewSettingsModel(cfg, 80, 30)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	save, ok := msgOf(t, cmd).(SaveSettingsMsg)
	if !ok {
		t.Fatal("ctrl+s should save")
	}
	if save.Values["chat.model"] != "gpt-x" {
		t.Errorf("chat.model = %q", save.Values["chat.model"])
	}
	if len(save.Values) != len(config.Keys) {
		t.Errorf("values = %d, want %d", len(save.Values), len(config.Keys))
	}
}
