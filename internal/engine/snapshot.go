// snapshot.go reconciles authoritative transcript fetches with live state.
package engine

import (
	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
)

// SnapshotTicket identifies one snapshot fetch. The fetch result is applied
// only if the ticket still matches the active session and no newer ticket
// has been applied since.
type SnapshotTicket struct {
	SessionID string
	Seq       uint64
}

func (e *Engine) issue() SnapshotTicket {
	e.issued++
	return SnapshotTicket{SessionID: e.active, Seq: e.issued}
}

// RequestSnapshot issues a ticket for a manual refresh of the active session.
func (e *Engine) RequestSnapshot() (SnapshotTicket, error) {
	if e.active == "" {
		return SnapshotTicket{}, ErrNoActiveSession
	}
	return e.issue(), nil
}

// ApplySnapshot replaces the transcript with msgs, the authoritative message
// list fetched for ticket. It reports whether the snapshot was applied: a
// result for a session that is no longer active, or one older than a
// snapshot already applied, leaves the transcript unchanged.
//
// Provisional messages not present in msgs are discarded. Messages that
// belong to another session are skipped.
func (e *Engine) ApplySnapshot(ticket SnapshotTicket, msgs []model.MessageWithParts) bool {
	if ticket.SessionID == "" || ticket.SessionID != e.active {
		e.log(log.LogEvent{
			Event:     log.EventSnapshotDiscarded,
			SessionID: ticket.SessionID,
			Reason:    "session no longer active",
		})
		return false
	}
	if ticket.Seq < e.applied {
		e.log(log.LogEvent{
			Event:     log.EventSnapshotDiscarded,
			SessionID: ticket.SessionID,
			Reason:    "superseded by a newer snapshot",
		})
		return false
	}

	kept := make([]model.MessageWithParts, 0, len(msgs))
	for _, m := range msgs {
		if m.Info.ID == "" {
			continue
		}
		if m.Info.SessionID != "" && m.Info.SessionID != ticket.SessionID {
			continue
		}
		kept = append(kept, m)
	}

	discarded := len(e.store.Provisional())
	e.store.ReplaceAll(kept)
	e.applied = ticket.Seq
	e.refreshLastModel()

	e.log(log.LogEvent{
		Event:     log.EventSnapshotApplied,
		SessionID: ticket.SessionID,
		Count:     len(kept),
		Data:      map[string]any{"seq": ticket.Seq, "provisional": discarded},
	})
	return true
}

// SnapshotFailed records a failed fetch for ticket. The transcript is kept
// as is; a notice is set only if the ticket is still for the active session.
func (e *Engine) SnapshotFailed(ticket SnapshotTicket, err error) bool {
	e.log(log.LogEvent{
		Event:     log.EventSnapshotFailed,
		SessionID: ticket.SessionID,
		Error:     errString(err),
	})
	if ticket.SessionID != e.active {
		return false
	}
	e.notice = "Could not load messages: " + errString(err)
	return true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
