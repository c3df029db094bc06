// Package engine reconciles the server event stream, snapshot fetches and
// optimistic user input into the transcript of the active session.
//
// An Engine is driven from a single loop (the bubbletea Update function or
// Loop). None of its methods block and none are safe for concurrent use.
package engine

import (
	"errors"
	"time"

	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/transcript"
)

var (
	// ErrRoutingMismatch marks an event or response for a session other than
	// the active one. It is discarded, never surfaced to the user.
	ErrRoutingMismatch = errors.New("event is not for the active session")
	// ErrNoActiveSession is returned when no session has been activated.
	ErrNoActiveSession = errors.New("no active session")
	// ErrEmptyInput is returned by Submit for blank text.
	ErrEmptyInput = errors.New("message is empty")
)

// Notices shown to the user.
const (
	NoticeSlow = "The agent is taking a long time to respond..."
)

// Options configures an Engine.
type Options struct {
	Logger         *log.Logger
	WaitingTimeout time.Duration
	Now            func() time.Time
}

// Engine owns the transcript of the active session together with the
// session metadata cache and the waiting monitor.
type Engine struct {
	store     *transcript.Store
	active    string
	sessions  map[string]model.Session
	monitor   Monitor
	notice    string
	lastModel string

	issued  uint64 // last snapshot ticket handed out
	applied uint64 // oldest ticket still accepted for the active session

	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time
}

// New returns an Engine with no active session.
func New(opts Options) *Engine {
	if opts.WaitingTimeout <= 0 {
		opts.WaitingTimeout = DefaultWaitingTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    transcript.New(),
		sessions: make(map[string]model.Session),
		timeout:  opts.WaitingTimeout,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Active returns the id of the active session, or "".
func (e *Engine) Active() string {
	return e.active
}

// Messages returns the render-ready transcript in display order.
func (e *Engine) Messages() []model.MessageWithParts {
	return e.store.Messages()
}

// Message returns a copy of one message of the transcript.
func (e *Engine) Message(id string) (model.MessageWithParts, bool) {
	return e.store.Message(id)
}

// Waiting reports whether a sent message is still unanswered.
func (e *Engine) Waiting() bool {
	return e.monitor.Waiting()
}

// WaitingSince returns when the current wait started.
func (e *Engine) WaitingSince() time.Time {
	return e.monitor.Since()
}

// WaitingTimeout is the delay after which callers report a wait to
// WaitingExpired.
func (e *Engine) WaitingTimeout() time.Duration {
	return e.timeout
}

// Notice returns the transient user-visible notice, if any.
func (e *Engine) Notice() string {
	return e.notice
}

// DismissNotice clears the notice.
func (e *Engine) DismissNotice() {
	e.notice = ""
}

// LastModelID returns the model id of the most recent assistant message.
func (e *Engine) LastModelID() string {
	return e.lastModel
}

// Remember stores session metadata in the cache.
func (e *Engine) Remember(sessions ...model.Session) {
	for _, s := range sessions {
		if s.ID != "" {
			e.sessions[s.ID] = s
		}
	}
}

// Session returns cached metadata for id.
func (e *Engine) Session(id string) (model.Session, bool) {
	s, ok := e.sessions[id]
	return s, ok
}

// ActiveSession returns cached metadata for the active session.
func (e *Engine) ActiveSession() (model.Session, bool) {
	if e.active == "" {
		return model.Session{}, false
	}
	return e.Session(e.active)
}

// Activate switches to sessionID: the transcript is cleared, the waiting
// state reset, and a snapshot ticket is issued for the initial fetch.
// Responses still in flight for the previous session are discarded when
// they arrive.
func (e *Engine) Activate(sessionID string) SnapshotTicket {
	previous := e.active
	e.active = sessionID
	e.store.Clear()
	e.monitor.Clear()
	e.notice = ""
	e.lastModel = ""

	e.log(log.LogEvent{
		Event:     log.EventSessionActivated,
		SessionID: sessionID,
		Data:      map[string]any{"previous": previous},
	})
	t := e.issue()
	// Tickets issued before this activation are stale even if the same
	// session is activated again.
	e.applied = t.Seq
	return t
}

// Deactivate leaves the active session.
func (e *Engine) Deactivate() {
	e.active = ""
	e.store.Clear()
	e.monitor.Clear()
	e.notice = ""
	e.lastModel = ""
	e.applied = 0
}

func (e *Engine) log(ev log.LogEvent) {
	_ = e.logger.Append(ev)
}

// refreshLastModel scans the transcript for the newest assistant model id.
func (e *Engine) refreshLastModel() {
	msgs := e.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		info := msgs[i].Info
		if info.Role == model.RoleAssistant && info.ModelID != "" {
			e.lastModel = info.ModelID
			return
		}
	}
}
