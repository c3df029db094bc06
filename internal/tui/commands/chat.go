package commands

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tide-dev/tide/internal/engine"
	"github.com/tide-dev/tide/internal/history"
	"github.com/tide-dev/tide/internal/tui"
)

// promptHistoryLimit caps the prompts offered for recall.
const promptHistoryLimit = 50

// FetchSnapshotCmd fetches the transcript for a snapshot ticket.
func FetchSnapshotCmd(b Backend, t engine.SnapshotTicket) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := callContext()
		defer cancel()
		msgs, err := b.GetMessages(ctx, t.SessionID)
		return tui.SnapshotMsg{Ticket: t, Messages: msgs, Err: err}
	}
}

// SendCmd posts a submitted message to the backend.
func SendCmd(b Backend, req engine.SendRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := callContext()
		defer cancel()
		err := b.SendMessage(ctx, req.SessionID, req.Input)
		return tui.SendResultMsg{Request: req, Err: err}
	}
}

// WaitingTimerCmd fires a WaitingTimeoutMsg for seq after d.
func WaitingTimerCmd(d time.Duration, seq uint64) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return tui.WaitingTimeoutMsg{Seq: seq}
	})
}

// RecordPromptCmd stores a sent prompt for later recall.
func RecordPromptCmd(store *history.Store, server, sessionID, text string) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		if err := store.RecordPrompt(server, sessionID, text); err != nil {
			return tui.ErrorMsg{Err: fmt.Errorf("saving prompt: %w", err)}
		}
		return nil
	}
}

// LoadPromptsCmd reads recently sent prompts.
func LoadPromptsCmd(store *history.Store, server string) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		prompts, err := store.RecentPrompts(server, promptHistoryLimit)
		if err != nil {
			return nil
		}
		return tui.PromptsLoadedMsg{Prompts: prompts}
	}
}

// PolishCmd rewrites text through the configured LLM.
func PolishCmd(p Polisher, text string) tea.Cmd {
	return func() tea.Msg {
		if p == nil {
			return tui.PolishedMsg{Err: fmt.Errorf("polish is not configured")}
		}
		ctx, cancel := callContext()
		defer cancel()
		out, err := p.Polish(ctx, text)
		return tui.PolishedMsg{Text: out, Err: err}
	}
}
