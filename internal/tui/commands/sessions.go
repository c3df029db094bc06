package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tide-dev/tide/internal/history"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/tui"
)

// cachedSessionLimit caps the cached list shown before the backend answers.
const cachedSessionLimit = 200

// LoadSessionsCmd fetches the session list from the backend and refreshes
// the local cache with it.
func LoadSessionsCmd(b Backend, store *history.Store, server string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := callContext()
		defer cancel()

		sessions, err := b.ListSessions(ctx)
		if err != nil {
			return tui.SessionsLoadedMsg{Err: err}
		}
		if store != nil {
			// best effort
			_ = store.SaveSessions(server, sessions)
		}
		return tui.SessionsLoadedMsg{Sessions: sessions}
	}
}

// LoadCachedSessionsCmd reads the session list saved by the previous run.
func LoadCachedSessionsCmd(store *history.Store, server string) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return tui.SessionsLoadedMsg{Cached: true, Err: fmt.Errorf("history store not available")}
		}
		sessions, err := store.ListSessions(server, cachedSessionLimit)
		return tui.SessionsLoadedMsg{Sessions: sessions, Cached: true, Err: err}
	}
}

// LoadLastActiveCmd reads the session that was open when the TUI last exited.
func LoadLastActiveCmd(store *history.Store, server string) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		id, err := store.LastActive(server)
		if err != nil || id == "" {
			return nil
		}
		return tui.LastActiveMsg{ID: id}
	}
}

// SetLastActiveCmd records the open session.
func SetLastActiveCmd(store *history.Store, server, id string) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		if err := store.SetLastActive(server, id); err != nil {
			return tui.ErrorMsg{Err: fmt.Errorf("saving last session: %w", err)}
		}
		return nil
	}
}

// CacheSessionCmd writes one session to the local cache.
func CacheSessionCmd(store *history.Store, server string, sess model.Session) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		_ = store.UpsertSession(server, sess)
		return nil
	}
}

// CreateSessionCmd creates a session on the backend.
func CreateSessionCmd(b Backend, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := callContext()
		defer cancel()
		sess, err := b.CreateSession(ctx, title)
		return tui.SessionCreatedMsg{Session: sess, Err: err}
	}
}

// RenameSessionCmd renames a session on the backend.
func RenameSessionCmd(b Backend, id, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := callContext()
		defer cancel()
		sess, err := b.UpdateSession(ctx, id, title)
		return tui.SessionRenamedMsg{Session: sess, Err: err}
	}
}

// DeleteSessionCmd deletes a session on the backend and drops it from the
// local cache.
func DeleteSessionCmd(b Backend, store *history.Store, server, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := callContext()
		defer cancel()
		if err := b.DeleteSession(ctx, id); err != nil {
			return tui.SessionRemovedMsg{ID: id, Err: err}
		}
		if store != nil {
			_ = store.DeleteSession(server, id)
		}
		return tui.SessionRemovedMsg{ID: id}
	}
}

// ForgetSessionCmd drops a session deleted elsewhere from the local cache.
func ForgetSessionCmd(store *history.Store, server, id string) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		_ = store.DeleteSession(server, id)
		return nil
	}
}
