package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TempIDPrefix marks ids synthesized by the client for optimistic messages.
const TempIDPrefix = "temp_"

// MessageTime holds message timestamps in Unix milliseconds.
// Completed is nil while the message is still being generated.
type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

// Message is the metadata of one transcript entry.
type Message struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionID"`
	Role       Role        `json:"role"`
	Time       MessageTime `json:"time"`
	ModelID    string      `json:"modelID,omitempty"`
	ProviderID string      `json:"providerID,omitempty"`
}

// IsCompleted reports whether the backend has finished generating the message.
func (m Message) IsCompleted() bool {
	return m.Time.Completed != nil
}

// IsProvisional reports whether the message carries a client-generated id.
func (m Message) IsProvisional() bool {
	return IsTempID(m.ID)
}

// MessageWithParts is a message together with its ordered content parts.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

// UnmarshalJSON decodes the message info strictly and the parts leniently:
// null entries and parts that fail validation are skipped.
func (m *MessageWithParts) UnmarshalJSON(data []byte) error {
	var aux struct {
		Info  Message         `json:"info"`
		Parts json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Info.ID == "" {
		return &MalformedError{Kind: "message", Reason: "missing info.id"}
	}

	m.Info = aux.Info
	m.Parts = make([]Part, 0)

	parts := gjson.ParseBytes(aux.Parts)
	if !parts.IsArray() {
		return nil
	}
	parts.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		p, err := DecodePart([]byte(value.Raw))
		if err != nil {
			return true
		}
		m.Parts = append(m.Parts, p)
		return true
	})
	return nil
}

// Clone returns a copy whose parts slice can be modified independently.
func (m MessageWithParts) Clone() MessageWithParts {
	parts := make([]Part, len(m.Parts))
	copy(parts, m.Parts)
	return MessageWithParts{Info: m.Info, Parts: parts}
}

// NewTempID returns a fresh client-side id for an optimistic message or part.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// NewOptimisticUserMessage builds the provisional user message shown the
// instant input is submitted: a temporary id and a single text part.
func NewOptimisticUserMessage(sessionID, text string, now int64) MessageWithParts {
	id := NewTempID()
	return MessageWithParts{
		Info: Message{
			ID:        id,
			SessionID: sessionID,
			Role:      RoleUser,
			Time:      MessageTime{Created: now},
		},
		Parts: []Part{
			TextPart{
				PartHeader: PartHeader{
					ID:        NewTempID(),
					MessageID: id,
					SessionID: sessionID,
					Type:      PartTypeText,
				},
				Text: text,
			},
		},
	}
}

// MalformedError reports a payload that is missing required fields.
// Callers drop the payload; it never stops the engine.
type MalformedError struct {
	Kind   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s: %s", e.Kind, e.Reason)
}
