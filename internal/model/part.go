package model

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// PartType is the discriminator of the Part union.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeReasoning  PartType = "reasoning"
	PartTypeTool       PartType = "tool"
	PartTypeStepStart  PartType = "step-start"
	PartTypeStepFinish PartType = "step-finish"
	PartTypeSnapshot   PartType = "snapshot"
	PartTypePatch      PartType = "patch"
	PartTypeAgent      PartType = "agent"
	PartTypeRetry      PartType = "retry"
)

// Tool execution states.
const (
	ToolStatusPending   = "pending"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// PartHeader carries the fields shared by every part. MessageID and
// SessionID are back-references used for routing only.
type PartHeader struct {
	ID        string   `json:"id"`
	MessageID string   `json:"messageID,omitempty"`
	SessionID string   `json:"sessionID,omitempty"`
	Type      PartType `json:"type"`
}

// Header returns the shared part fields.
func (h PartHeader) Header() PartHeader { return h }

// Part is one atomic content unit of a message. The set of implementations
// is closed; UnknownPart absorbs part kinds this client does not know yet.
type Part interface {
	Header() PartHeader
	isPart()
}

// TextPart is generated or user-entered text.
type TextPart struct {
	PartHeader
	Text      string `json:"text"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

// ReasoningPart is model reasoning, streamed as full-state snapshots.
type ReasoningPart struct {
	PartHeader
	Text string `json:"text"`
}

// ToolState is the current state of a tool invocation.
type ToolState struct {
	Status   string         `json:"status,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   any            `json:"output,omitempty"`
	Title    string         `json:"title,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolPart is a tool invocation and its evolving state.
type ToolPart struct {
	PartHeader
	Tool   string     `json:"tool"`
	CallID string     `json:"callID,omitempty"`
	State  *ToolState `json:"state,omitempty"`
}

// Status returns the tool status, or "unknown" when no state was sent.
func (p ToolPart) Status() string {
	if p.State == nil || p.State.Status == "" {
		return "unknown"
	}
	return p.State.Status
}

// Title returns the state title, falling back to the tool name.
func (p ToolPart) Title() string {
	if p.State != nil && p.State.Title != "" {
		return p.State.Title
	}
	return p.Tool
}

// StepStartPart marks the start of a generation step.
type StepStartPart struct {
	PartHeader
	Snapshot string `json:"snapshot,omitempty"`
}

// TokenUsage is the token accounting attached to a finished step.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning"`
	Cache     struct {
		Read  int `json:"read"`
		Write int `json:"write"`
	} `json:"cache"`
}

// StepFinishPart marks the end of a generation step.
type StepFinishPart struct {
	PartHeader
	Reason   string      `json:"reason,omitempty"`
	Snapshot string      `json:"snapshot,omitempty"`
	Cost     float64     `json:"cost,omitempty"`
	Tokens   *TokenUsage `json:"tokens,omitempty"`
}

// SnapshotPart references a workspace snapshot.
type SnapshotPart struct {
	PartHeader
	Snapshot string `json:"snapshot"`
}

// PatchPart lists files changed by a step.
type PatchPart struct {
	PartHeader
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
}

// AgentPart records the agent that produced content.
type AgentPart struct {
	PartHeader
	Name string `json:"name"`
}

// RetryPart records a retried provider call.
type RetryPart struct {
	PartHeader
	Attempt int             `json:"attempt"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// UnknownPart keeps a part of an unrecognized type verbatim.
type UnknownPart struct {
	PartHeader
	Raw json.RawMessage `json:"-"`
}

// MarshalJSON re-emits the original payload.
func (p UnknownPart) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return json.Marshal(p.PartHeader)
	}
	return p.Raw, nil
}

func (TextPart) isPart()       {}
func (ReasoningPart) isPart()  {}
func (ToolPart) isPart()       {}
func (StepStartPart) isPart()  {}
func (StepFinishPart) isPart() {}
func (SnapshotPart) isPart()   {}
func (PatchPart) isPart()      {}
func (AgentPart) isPart()      {}
func (RetryPart) isPart()      {}
func (UnknownPart) isPart()    {}

// DecodePart validates raw and decodes it into the matching Part variant.
// The payload must be a JSON object with non-empty "id" and "type".
func DecodePart(raw []byte) (Part, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &MalformedError{Kind: "part", Reason: "invalid JSON"}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, &MalformedError{Kind: "part", Reason: "not an object"}
	}
	id := doc.Get("id").String()
	typ := doc.Get("type").String()
	if id == "" || typ == "" {
		return nil, &MalformedError{Kind: "part", Reason: "missing id or type"}
	}

	switch PartType(typ) {
	case PartTypeText:
		return decodeInto[TextPart](raw)
	case PartTypeReasoning:
		return decodeInto[ReasoningPart](raw)
	case PartTypeTool:
		return decodeInto[ToolPart](raw)
	case PartTypeStepStart:
		return decodeInto[StepStartPart](raw)
	case PartTypeStepFinish:
		return decodeInto[StepFinishPart](raw)
	case PartTypeSnapshot:
		return decodeInto[SnapshotPart](raw)
	case PartTypePatch:
		return decodeInto[PatchPart](raw)
	case PartTypeAgent:
		return decodeInto[AgentPart](raw)
	case PartTypeRetry:
		return decodeInto[RetryPart](raw)
	default:
		return UnknownPart{
			PartHeader: PartHeader{
				ID:        id,
				MessageID: doc.Get("messageID").String(),
				SessionID: doc.Get("sessionID").String(),
				Type:      PartType(typ),
			},
			Raw: append(json.RawMessage(nil), raw...),
		}, nil
	}
}

func decodeInto[T Part](raw []byte) (Part, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &MalformedError{Kind: "part", Reason: fmt.Sprintf("decode: %v", err)}
	}
	return p, nil
}
