// submit.go handles optimistic user input and the outcome of sending it.
package engine

import (
	"strings"
	"time"

	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
)

// SendRequest is the work a caller must perform after Submit: send Input
// to the backend and report the outcome through SendSucceeded or
// SendFailed. WaitSeq is the waiting generation to report to
// WaitingExpired once the waiting timeout elapses.
type SendRequest struct {
	SessionID string
	TempID    string
	Input     model.ChatInput
	WaitSeq   uint64
	Started   time.Time
}

// Submit inserts text as a provisional user message in the active session
// and enters the waiting state.
func (e *Engine) Submit(text string, sel *model.ModelSelection, agent string) (SendRequest, error) {
	if e.active == "" {
		return SendRequest{}, ErrNoActiveSession
	}
	if strings.TrimSpace(text) == "" {
		return SendRequest{}, ErrEmptyInput
	}

	now := e.now()
	msg := model.NewOptimisticUserMessage(e.active, text, now.UnixMilli())
	e.store.InsertProvisional(msg)
	e.notice = ""

	return SendRequest{
		SessionID: e.active,
		TempID:    msg.Info.ID,
		Input:     model.NewTextInput(text, sel, agent),
		WaitSeq:   e.monitor.Begin(now),
		Started:   now,
	}, nil
}

// SendSucceeded records that the backend accepted req. The provisional
// message stays until a snapshot replaces it.
func (e *Engine) SendSucceeded(req SendRequest) {
	e.log(log.LogEvent{
		Event:      log.EventMessageSubmitted,
		SessionID:  req.SessionID,
		MessageID:  req.TempID,
		DurationMs: e.now().Sub(req.Started).Milliseconds(),
	})
}

// SendFailed rolls back the provisional message of req, leaves the waiting
// state and sets a notice. It reports whether the active transcript changed.
func (e *Engine) SendFailed(req SendRequest, err error) bool {
	e.log(log.LogEvent{
		Event:     log.EventSendFailed,
		SessionID: req.SessionID,
		MessageID: req.TempID,
		Error:     errString(err),
	})
	if req.SessionID != e.active {
		return false
	}
	e.store.Remove(req.TempID)
	e.monitor.ClearIf(req.WaitSeq)
	e.notice = "Send failed: " + errString(err)
	return true
}

// WaitingExpired is called when the waiting timeout for generation seq
// elapses. It sets the slow-response notice if that wait is still
// outstanding, and never ends the wait itself.
func (e *Engine) WaitingExpired(seq uint64) bool {
	if !e.monitor.Expired(seq) {
		return false
	}
	e.notice = NoticeSlow
	e.log(log.LogEvent{
		Event:      log.EventWaitingSlow,
		SessionID:  e.active,
		DurationMs: e.now().Sub(e.monitor.Since()).Milliseconds(),
	})
	return true
}
