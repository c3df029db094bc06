// loop.go runs an Engine on its own goroutine for headless clients.
package engine

import (
	"context"
	"time"

	"github.com/tide-dev/tide/internal/model"
)

// Backend is the part of the agent API the engine calls into.
type Backend interface {
	GetMessages(ctx context.Context, sessionID string) ([]model.MessageWithParts, error)
	SendMessage(ctx context.Context, sessionID string, in model.ChatInput) error
}

// UpdateKind says what an Update reports.
type UpdateKind int

const (
	UpdateTranscript UpdateKind = iota
	UpdateWaiting
	UpdateNotice
	UpdateCompleted
	UpdateSnapshot
	UpdateSendFailed
	UpdateSessionDeleted
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateTranscript:
		return "transcript"
	case UpdateWaiting:
		return "waiting"
	case UpdateNotice:
		return "notice"
	case UpdateCompleted:
		return "completed"
	case UpdateSnapshot:
		return "snapshot"
	case UpdateSendFailed:
		return "send_failed"
	case UpdateSessionDeleted:
		return "session_deleted"
	default:
		return "unknown"
	}
}

// Update is reported to the observer after the engine changed.
type Update struct {
	Kind    UpdateKind
	Message *model.Message // UpdateCompleted
	Err     error          // UpdateSendFailed
}

// Observer receives updates on the loop goroutine. It may read the engine
// but must not call Loop.Do.
type Observer func(e *Engine, u Update)

// Loop serializes inbound events, backend responses, timers and user
// actions onto a single goroutine so the Engine never runs concurrently
// with itself.
type Loop struct {
	eng     *Engine
	backend Backend
	observe Observer

	ctx   context.Context
	tasks chan func()
	done  chan struct{}
}

// NewLoop returns a Loop driving eng. observe may be nil.
func NewLoop(eng *Engine, backend Backend, observe Observer) *Loop {
	if observe == nil {
		observe = func(*Engine, Update) {}
	}
	return &Loop{
		eng:     eng,
		backend: backend,
		observe: observe,
		ctx:     context.Background(),
		tasks:   make(chan func(), 256),
		done:    make(chan struct{}),
	}
}

// Run processes work until ctx is cancelled. Backend calls started by the
// loop use ctx.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	l.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// post queues fn for the loop goroutine. It returns false once the loop
// has stopped.
func (l *Loop) post(fn func()) bool {
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(fn func(e *Engine)) bool {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn(l.eng)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Deliver queues a server event. It has the shape of an events.Handler so
// it can be subscribed to a hub directly.
func (l *Loop) Deliver(ev model.Event) {
	l.post(func() { l.handle(ev) })
}

// Activate switches the engine to sessionID and fetches its transcript.
func (l *Loop) Activate(sessionID string) {
	l.post(func() {
		t := l.eng.Activate(sessionID)
		l.observe(l.eng, Update{Kind: UpdateTranscript})
		l.fetch(t)
	})
}

// Refresh fetches a fresh snapshot of the active session.
func (l *Loop) Refresh() {
	l.post(func() {
		if t, err := l.eng.RequestSnapshot(); err == nil {
			l.fetch(t)
		}
	})
}

// Send submits text to the active session.
func (l *Loop) Send(text string, sel *model.ModelSelection, agent string) {
	l.post(func() {
		req, err := l.eng.Submit(text, sel, agent)
		if err != nil {
			l.observe(l.eng, Update{Kind: UpdateSendFailed, Err: err})
			return
		}
		l.observe(l.eng, Update{Kind: UpdateTranscript})
		l.observe(l.eng, Update{Kind: UpdateWaiting})
		l.send(req)
		l.startTimer(req.WaitSeq)
	})
}

func (l *Loop) handle(ev model.Event) {
	fx, _ := l.eng.HandleEvent(ev)
	if fx.SessionDeleted {
		l.observe(l.eng, Update{Kind: UpdateSessionDeleted})
	}
	if fx.Changed {
		l.observe(l.eng, Update{Kind: UpdateTranscript})
	}
	if fx.WaitingCleared {
		l.observe(l.eng, Update{Kind: UpdateWaiting})
	}
	if fx.Completed != nil {
		l.observe(l.eng, Update{Kind: UpdateCompleted, Message: fx.Completed})
	}
	if fx.Refresh != nil {
		l.fetch(*fx.Refresh)
	}
}

func (l *Loop) fetch(t SnapshotTicket) {
	ctx := l.ctx
	go func() {
		msgs, err := l.backend.GetMessages(ctx, t.SessionID)
		l.post(func() {
			if err != nil {
				if l.eng.SnapshotFailed(t, err) {
					l.observe(l.eng, Update{Kind: UpdateNotice})
				}
				return
			}
			if l.eng.ApplySnapshot(t, msgs) {
				l.observe(l.eng, Update{Kind: UpdateSnapshot})
			}
		})
	}()
}

func (l *Loop) send(req SendRequest) {
	ctx := l.ctx
	go func() {
		err := l.backend.SendMessage(ctx, req.SessionID, req.Input)
		l.post(func() {
			if err != nil {
				if l.eng.SendFailed(req, err) {
					l.observe(l.eng, Update{Kind: UpdateSendFailed, Err: err})
				}
				return
			}
			l.eng.SendSucceeded(req)
		})
	}()
}

func (l *Loop) startTimer(seq uint64) {
	time.AfterFunc(l.eng.WaitingTimeout(), func() {
		l.post(func() {
			if l.eng.WaitingExpired(seq) {
				l.observe(l.eng, Update{Kind: UpdateNotice})
			}
		})
	})
}
