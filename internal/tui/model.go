package tui

import "github.com/tide-dev/tide/internal/model"

// ViewState represents the current screen of the TUI.
type ViewState int

const (
	StateSessions ViewState = iota
	StateChat
	StateSettings
)

func (s ViewState) String() string {
	switch s {
	case StateSessions:
		return "sessions"
	case StateChat:
		return "chat"
	case StateSettings:
		return "settings"
	default:
		return "unknown"
	}
}

// SessionTitle returns a display title for s.
func SessionTitle(s model.Session) string {
	if s.Title != "" {
		return s.Title
	}
	return s.ID
}
