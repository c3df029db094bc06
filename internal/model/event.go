package model

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// EventType names a server-sent event.
type EventType string

const (
	EventMessagePartUpdated EventType = "message.part.updated"
	EventMessageUpdated     EventType = "message.updated"
	EventSessionUpdated     EventType = "session.updated"
	EventSessionDeleted     EventType = "session.deleted"
	EventServerConnected    EventType = "server.connected"
)

// Event is the envelope of every server-sent event. Properties stay raw
// until a consumer asks for a typed view.
type Event struct {
	Type       EventType       `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// PartUpdated is the payload of message.part.updated. Delta is set when the
// backend streams an incremental text fragment.
type PartUpdated struct {
	Part  Part
	Delta *string
}

// MessageUpdated is the payload of message.updated.
type MessageUpdated struct {
	Info Message
}

// SessionUpdated is the payload of session.updated and session.deleted.
type SessionUpdated struct {
	Info Session
}

// ParseEvent decodes one SSE data line into an Event envelope.
func ParseEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return Event{}, &MalformedError{Kind: "event", Reason: "invalid JSON"}
	}
	typ := gjson.GetBytes(data, "type")
	if typ.String() == "" {
		return Event{}, &MalformedError{Kind: "event", Reason: "missing type"}
	}
	props := gjson.GetBytes(data, "properties")
	ev := Event{Type: EventType(typ.String())}
	if props.Exists() {
		ev.Properties = json.RawMessage(props.Raw)
	}
	return ev, nil
}

// NewEvent builds an envelope from a typed properties value.
func NewEvent(typ EventType, properties any) (Event, error) {
	raw, err := json.Marshal(properties)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Properties: raw}, nil
}

// PartUpdated decodes the payload of a message.part.updated event.
func (e Event) PartUpdated() (PartUpdated, error) {
	part := gjson.GetBytes(e.Properties, "part")
	if !part.IsObject() {
		return PartUpdated{}, &MalformedError{Kind: "event", Reason: "message.part.updated without part"}
	}
	p, err := DecodePart([]byte(part.Raw))
	if err != nil {
		return PartUpdated{}, err
	}
	if p.Header().MessageID == "" || p.Header().SessionID == "" {
		return PartUpdated{}, &MalformedError{Kind: "part", Reason: "missing messageID or sessionID"}
	}

	out := PartUpdated{Part: p}
	if delta := gjson.GetBytes(e.Properties, "delta"); delta.Type == gjson.String {
		d := delta.String()
		out.Delta = &d
	}
	return out, nil
}

// MessageUpdated decodes the payload of a message.updated event.
func (e Event) MessageUpdated() (MessageUpdated, error) {
	info := gjson.GetBytes(e.Properties, "info")
	if !info.IsObject() {
		return MessageUpdated{}, &MalformedError{Kind: "event", Reason: "message.updated without info"}
	}
	var msg Message
	if err := json.Unmarshal([]byte(info.Raw), &msg); err != nil {
		return MessageUpdated{}, &MalformedError{Kind: "message", Reason: err.Error()}
	}
	if msg.ID == "" || msg.SessionID == "" || msg.Role == "" {
		return MessageUpdated{}, &MalformedError{Kind: "message", Reason: "missing id, sessionID or role"}
	}
	return MessageUpdated{Info: msg}, nil
}

// SessionUpdated decodes the payload of a session.updated or session.deleted event.
func (e Event) SessionUpdated() (SessionUpdated, error) {
	info := gjson.GetBytes(e.Properties, "info")
	if !info.IsObject() {
		return SessionUpdated{}, &MalformedError{Kind: "event", Reason: string(e.Type) + " without info"}
	}
	var sess Session
	if err := json.Unmarshal([]byte(info.Raw), &sess); err != nil {
		return SessionUpdated{}, &MalformedError{Kind: "session", Reason: err.Error()}
	}
	if sess.ID == "" {
		return SessionUpdated{}, &MalformedError{Kind: "session", Reason: "missing id"}
	}
	return SessionUpdated{Info: sess}, nil
}

// PartUpdatedEvent builds a message.part.updated envelope.
func PartUpdatedEvent(p Part, delta *string) (Event, error) {
	props := struct {
		Part  Part    `json:"part"`
		Delta *string `json:"delta,omitempty"`
	}{Part: p, Delta: delta}
	return NewEvent(EventMessagePartUpdated, props)
}

// MessageUpdatedEvent builds a message.updated envelope.
func MessageUpdatedEvent(info Message) (Event, error) {
	return NewEvent(EventMessageUpdated, map[string]any{"info": info})
}

// SessionEvent builds a session.updated or session.deleted envelope.
func SessionEvent(typ EventType, info Session) (Event, error) {
	return NewEvent(typ, map[string]any{"info": info})
}
