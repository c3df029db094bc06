// Package transcript holds the in-memory ordered transcript of one session
// and the merge rules applied to it.
//
// A Store is not safe for concurrent use. It is driven from a single event
// loop: each mutation runs to completion before the next one starts.
package transcript

import (
	"github.com/tide-dev/tide/internal/model"
)

// entry is one message with its parts. index maps part id to the position
// of the part that receives further updates for that id.
type entry struct {
	info  model.Message
	parts []model.Part
	index map[string]int
}

func newEntry(info model.Message) *entry {
	return &entry{
		info:  info,
		parts: make([]model.Part, 0),
		index: make(map[string]int),
	}
}

func (e *entry) appendPart(p model.Part) {
	e.index[p.Header().ID] = len(e.parts)
	e.parts = append(e.parts, p)
}

// Store maps message id to message-with-parts. Insertion order is display
// order: new messages are appended, parts are appended or updated in place.
type Store struct {
	order   []string
	entries map[string]*entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Len returns the number of messages.
func (s *Store) Len() int {
	return len(s.order)
}

// Has reports whether a message with the given id exists.
func (s *Store) Has(id string) bool {
	_, ok := s.entries[id]
	return ok
}

// UpsertMessageInfo replaces the metadata of an existing message, keeping
// its parts, or appends a new message with no parts.
func (s *Store) UpsertMessageInfo(info model.Message) {
	if e, ok := s.entries[info.ID]; ok {
		e.info = info
		return
	}
	s.entries[info.ID] = newEntry(info)
	s.order = append(s.order, info.ID)
}

// UpsertPart merges part into message messageID and reports whether the
// store changed. Unknown messages are never created here, and parts of user
// messages are never touched: user content is final once created.
func (s *Store) UpsertPart(messageID string, part model.Part, delta *string) bool {
	if part == nil {
		return false
	}
	e, ok := s.entries[messageID]
	if !ok {
		return false
	}
	if e.info.Role == model.RoleUser {
		return false
	}

	id := part.Header().ID
	i, exists := e.index[id]
	if !exists {
		e.appendPart(seed(part, delta))
		return true
	}

	merged, ok := Merge(e.parts[i], part, delta)
	if !ok {
		// Mismatched types: keep the old part and append the new one so that
		// nothing the backend sent is silently dropped.
		e.appendPart(seed(part, delta))
		return true
	}
	e.parts[i] = merged
	return true
}

// InsertProvisional appends a client-synthesized message with its parts.
// It is the only way a user message enters the store outside a snapshot.
// An existing message with the same id is left untouched.
func (s *Store) InsertProvisional(m model.MessageWithParts) bool {
	if _, ok := s.entries[m.Info.ID]; ok {
		return false
	}
	e := newEntry(m.Info)
	for _, p := range m.Parts {
		if p != nil {
			e.appendPart(p)
		}
	}
	s.entries[m.Info.ID] = e
	s.order = append(s.order, m.Info.ID)
	return true
}

// Remove deletes a message and reports whether it existed.
func (s *Store) Remove(id string) bool {
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// ReplaceAll discards the current contents, provisional messages included,
// and loads msgs in order. A repeated message id keeps its first position
// and its last content. Nil parts are skipped.
func (s *Store) ReplaceAll(msgs []model.MessageWithParts) {
	s.order = make([]string, 0, len(msgs))
	s.entries = make(map[string]*entry, len(msgs))

	for _, m := range msgs {
		e := newEntry(m.Info)
		for _, p := range m.Parts {
			if p != nil {
				e.appendPart(p)
			}
		}
		if _, dup := s.entries[m.Info.ID]; !dup {
			s.order = append(s.order, m.Info.ID)
		}
		s.entries[m.Info.ID] = e
	}
}

// Clear empties the store.
func (s *Store) Clear() {
	s.order = nil
	s.entries = make(map[string]*entry)
}

// Message returns a copy of one message.
func (s *Store) Message(id string) (model.MessageWithParts, bool) {
	e, ok := s.entries[id]
	if !ok {
		return model.MessageWithParts{}, false
	}
	return snapshot(e), true
}

// Messages returns the transcript in display order. The returned slices are
// copies; part values share nested tool state, which the store only ever
// replaces and never mutates in place.
func (s *Store) Messages() []model.MessageWithParts {
	out := make([]model.MessageWithParts, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshot(s.entries[id]))
	}
	return out
}

// Provisional returns the ids of messages that carry a temporary id.
func (s *Store) Provisional() []string {
	var ids []string
	for _, id := range s.order {
		if model.IsTempID(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func snapshot(e *entry) model.MessageWithParts {
	parts := make([]model.Part, len(e.parts))
	copy(parts, e.parts)
	return model.MessageWithParts{Info: e.info, Parts: parts}
}
