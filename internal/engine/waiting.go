// waiting.go tracks whether the user is waiting for the backend to respond.
package engine

import "time"

// DefaultWaitingTimeout is how long a send may go unanswered before the
// slow-response notice is shown.
const DefaultWaitingTimeout = 5 * time.Second

// Monitor is the idle/waiting state machine. Every Begin starts a new
// generation identified by a sequence number; a timer that fires for an
// older generation is ignored.
type Monitor struct {
	waiting  bool
	seq      uint64
	since    time.Time
	notified bool
}

// Begin enters the waiting state and returns the generation the caller's
// timer must report back to Expired.
func (m *Monitor) Begin(now time.Time) uint64 {
	m.seq++
	m.waiting = true
	m.since = now
	m.notified = false
	return m.seq
}

// Clear returns to idle and reports whether the monitor was waiting.
func (m *Monitor) Clear() bool {
	was := m.waiting
	m.waiting = false
	m.notified = false
	return was
}

// ClearIf returns to idle only if seq is the current generation.
func (m *Monitor) ClearIf(seq uint64) bool {
	if seq != m.seq {
		return false
	}
	return m.Clear()
}

// Waiting reports whether a response is outstanding.
func (m *Monitor) Waiting() bool {
	return m.waiting
}

// Since returns when the current wait started.
func (m *Monitor) Since() time.Time {
	return m.since
}

// Expired reports whether the timer for generation seq should surface the
// slow-response notice. It fires at most once per generation and never
// changes the waiting state.
func (m *Monitor) Expired(seq uint64) bool {
	if !m.waiting || seq != m.seq || m.notified {
		return false
	}
	m.notified = true
	return true
}
