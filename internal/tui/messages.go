package tui

import (
	"github.com/tide-dev/tide/internal/engine"
	"github.com/tide-dev/tide/internal/model"
)

// ============================================================================
// Session Messages
// ============================================================================

// SessionsLoadedMsg carries the session list. Cached is set when the list
// came from the local history store rather than the backend.
type SessionsLoadedMsg struct {
	Sessions []model.Session
	Cached   bool
	Err      error
}

// SessionCreatedMsg reports a created session.
type SessionCreatedMsg struct {
	Session model.Session
	Err     error
}

// SessionRenamedMsg reports a renamed session.
type SessionRenamedMsg struct {
	Session model.Session
	Err     error
}

// SessionRemovedMsg reports the result of a delete call.
type SessionRemovedMsg struct {
	ID  string
	Err error
}

// LastActiveMsg carries the session that was open when the TUI last exited.
type LastActiveMsg struct {
	ID string
}

// ============================================================================
// Chat Messages
// ============================================================================

// SnapshotMsg carries the result of a transcript fetch for a ticket.
type SnapshotMsg struct {
	Ticket   engine.SnapshotTicket
	Messages []model.MessageWithParts
	Err      error
}

// SendResultMsg carries the result of a send call.
type SendResultMsg struct {
	Request engine.SendRequest
	Err     error
}

// WaitingTimeoutMsg fires when a wait has run for the waiting timeout.
type WaitingTimeoutMsg struct {
	Seq uint64
}

// PromptsLoadedMsg carries recently sent prompts, newest first.
type PromptsLoadedMsg struct {
	Prompts []string
}

// PolishedMsg carries rewritten input text.
type PolishedMsg struct {
	Text string
	Err  error
}

// ============================================================================
// Stream and Catalog Messages
// ============================================================================

// EventMsg wraps one server-sent event.
type EventMsg struct {
	Event model.Event
}

// StreamClosedMsg signals that the event channel was closed.
type StreamClosedMsg struct{}

// CatalogMsg carries the agents and providers offered by the backend.
type CatalogMsg struct {
	Agents    []model.Agent
	Providers model.ProvidersResponse
	Err       error
}

// ============================================================================
// General Messages
// ============================================================================

// ErrorMsg reports an error from a background operation.
type ErrorMsg struct {
	Err error
}

// CtrlCResetMsg clears the pending Ctrl+C confirmation.
type CtrlCResetMsg struct{}
