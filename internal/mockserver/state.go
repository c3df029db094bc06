package mockserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tide-dev/tide/internal/model"
)

// ID prefixes follow the backend's conventions.
const (
	newSessionTitle = "New session"

	sessionPrefix = "ses_"
	messagePrefix = "msg_"
	partPrefix    = "prt_"
)

func newID(prefix string) string {
	return prefix + strings.ToLower(ulid.Make().String())
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// State holds the sessions and transcripts served by the mock backend.
type State struct {
	mu       sync.RWMutex
	project  string
	sessions map[string]model.Session
	messages map[string][]*model.MessageWithParts
}

// NewState creates an empty State.
func NewState(project string) *State {
	return &State{
		project:  project,
		sessions: make(map[string]model.Session),
		messages: make(map[string][]*model.MessageWithParts),
	}
}

// CreateSession adds a session. An empty title gets a placeholder.
func (st *State) CreateSession(title string) model.Session {
	if title == "" {
		title = newSessionTitle + " - " + time.Now().UTC().Format(time.RFC3339)
	}
	now := nowMillis()
	sess := model.Session{
		ID:        newID(sessionPrefix),
		ProjectID: st.project,
		Title:     title,
		Time:      model.SessionTime{Created: now, Updated: now},
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[sess.ID] = sess
	return sess
}

// Session returns one session.
func (st *State) Session(id string) (model.Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Sessions returns every session, most recently updated first.
func (st *State) Sessions() []model.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]model.Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Updated != out[j].Time.Updated {
			return out[i].Time.Updated > out[j].Time.Updated
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RenameSession sets a session title.
func (st *State) RenameSession(id, title string) (model.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	s.Title = title
	s.Time.Updated = nowMillis()
	st.sessions[id] = s
	return s, true
}

// DeleteSession removes a session and its transcript.
func (st *State) DeleteSession(id string) (model.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	delete(st.sessions, id)
	delete(st.messages, id)
	return s, true
}

// touch bumps the session's update time. Callers hold mu.
func (st *State) touch(sessionID string) (model.Session, bool) {
	s, ok := st.sessions[sessionID]
	if !ok {
		return model.Session{}, false
	}
	s.Time.Updated = nowMillis()
	st.sessions[sessionID] = s
	return s, true
}

// Messages returns a deep enough copy of a session transcript for JSON
// encoding outside the lock.
func (st *State) Messages(sessionID string) ([]model.MessageWithParts, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if _, ok := st.sessions[sessionID]; !ok {
		return nil, false
	}
	msgs := st.messages[sessionID]
	out := make([]model.MessageWithParts, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	return out, true
}

// AddMessage appends a message to a session transcript.
func (st *State) AddMessage(m model.MessageWithParts) (model.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.touch(m.Info.SessionID)
	if !ok {
		return model.Session{}, false
	}
	mc := m.Clone()
	st.messages[m.Info.SessionID] = append(st.messages[m.Info.SessionID], &mc)
	return sess, true
}

// UpdateInfo replaces a message's metadata.
func (st *State) UpdateInfo(info model.Message) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	m := st.find(info.SessionID, info.ID)
	if m == nil {
		return false
	}
	m.Info = info
	return true
}

// PutPart stores the full current state of a part, replacing an earlier
// version with the same id.
func (st *State) PutPart(p model.Part) bool {
	h := p.Header()
	st.mu.Lock()
	defer st.mu.Unlock()
	m := st.find(h.SessionID, h.MessageID)
	if m == nil {
		return false
	}
	for i, existing := range m.Parts {
		if existing.Header().ID == h.ID {
			m.Parts[i] = p
			return true
		}
	}
	m.Parts = append(m.Parts, p)
	return true
}

func (st *State) find(sessionID, messageID string) *model.MessageWithParts {
	for _, m := range st.messages[sessionID] {
		if m.Info.ID == messageID {
			return m
		}
	}
	return nil
}

var errSessionGone = errors.New("session no longer exists")
