// reconciler.go applies inbound server events to the active transcript.
package engine

import (
	"errors"
	"fmt"

	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
)

// Effects describes what handling one event changed.
type Effects struct {
	// Changed is set when the transcript changed.
	Changed bool
	// WaitingCleared is set when the event ended a wait.
	WaitingCleared bool
	// SessionChanged is set when the active session metadata changed.
	SessionChanged bool
	// SessionDeleted is set when the active session was deleted; the engine
	// has been deactivated.
	SessionDeleted bool
	// Completed holds the message whose completion this event reported.
	Completed *model.Message
	// Refresh, when set, asks the caller to fetch a snapshot and hand it to
	// ApplySnapshot.
	Refresh *SnapshotTicket
}

// HandleEvent applies one server event. Events are applied strictly in
// the order they are handed in.
//
// The returned error explains why an event was dropped: ErrRoutingMismatch,
// ErrNoActiveSession or a *model.MalformedError. It is informational only;
// the engine state is always consistent afterwards.
func (e *Engine) HandleEvent(ev model.Event) (Effects, error) {
	var (
		fx  Effects
		err error
	)
	switch ev.Type {
	case model.EventMessagePartUpdated:
		fx, err = e.handlePart(ev)
	case model.EventMessageUpdated:
		fx, err = e.handleMessage(ev)
	case model.EventSessionUpdated:
		fx, err = e.handleSession(ev)
	case model.EventSessionDeleted:
		fx, err = e.handleSessionDeleted(ev)
	case model.EventServerConnected:
		// The stream (re)connected; anything emitted while it was down is
		// recovered from a fresh snapshot.
		if e.active != "" {
			t := e.issue()
			fx.Refresh = &t
		}
	default:
		// Event kinds the client does not use.
	}

	var malformed *model.MalformedError
	if errors.As(err, &malformed) {
		e.log(log.LogEvent{
			Event:  log.EventEventDropped,
			Type:   string(ev.Type),
			Reason: err.Error(),
		})
	}
	return fx, err
}

func (e *Engine) handlePart(ev model.Event) (Effects, error) {
	var fx Effects
	payload, err := ev.PartUpdated()
	if err != nil {
		return fx, err
	}
	h := payload.Part.Header()
	if err := e.route(h.SessionID); err != nil {
		return fx, err
	}

	fx.WaitingCleared = e.monitor.Clear()
	if fx.WaitingCleared {
		e.notice = ""
	}
	fx.Changed = e.store.UpsertPart(h.MessageID, payload.Part, payload.Delta)
	return fx, nil
}

func (e *Engine) handleMessage(ev model.Event) (Effects, error) {
	var fx Effects
	payload, err := ev.MessageUpdated()
	if err != nil {
		return fx, err
	}
	info := payload.Info
	if err := e.route(info.SessionID); err != nil {
		return fx, err
	}

	prev, existed := e.store.Message(info.ID)
	e.store.UpsertMessageInfo(info)
	fx.Changed = true

	if info.Role == model.RoleAssistant && info.ModelID != "" {
		e.lastModel = info.ModelID
	}

	if !info.IsCompleted() {
		return fx, nil
	}

	fx.WaitingCleared = e.monitor.Clear()
	if fx.WaitingCleared {
		e.notice = ""
	}
	if existed && prev.Info.IsCompleted() {
		return fx, nil
	}

	completed := info
	fx.Completed = &completed
	t := e.issue()
	fx.Refresh = &t
	e.log(log.LogEvent{
		Event:     log.EventMessageCompleted,
		SessionID: info.SessionID,
		MessageID: info.ID,
		Data:      map[string]any{"model": info.ModelID, "provider": info.ProviderID},
	})
	return fx, nil
}

func (e *Engine) handleSession(ev model.Event) (Effects, error) {
	var fx Effects
	payload, err := ev.SessionUpdated()
	if err != nil {
		return fx, err
	}
	if err := e.route(payload.Info.ID); err != nil {
		return fx, err
	}
	e.sessions[payload.Info.ID] = payload.Info
	fx.SessionChanged = true
	return fx, nil
}

func (e *Engine) handleSessionDeleted(ev model.Event) (Effects, error) {
	var fx Effects
	payload, err := ev.SessionUpdated()
	if err != nil {
		return fx, err
	}
	delete(e.sessions, payload.Info.ID)
	if err := e.route(payload.Info.ID); err != nil {
		return fx, err
	}

	e.log(log.LogEvent{Event: log.EventSessionDeleted, SessionID: payload.Info.ID})
	e.Deactivate()
	fx.Changed = true
	fx.SessionDeleted = true
	return fx, nil
}

// route checks that sessionID is the active session.
func (e *Engine) route(sessionID string) error {
	if e.active == "" {
		return ErrNoActiveSession
	}
	if sessionID != e.active {
		return fmt.Errorf("%w: got %s, active %s", ErrRoutingMismatch, sessionID, e.active)
	}
	return nil
}
