// Package testutil provides test helper utilities for tide tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tide-dev/tide/internal/model"
)

// TempConfigDir creates a temporary config directory with the given files and
// returns its path. Files is a map of relative path -> content.
// The directory is automatically cleaned up when the test finishes.
func TempConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// UserMessage returns a completed user message with a single text part.
func UserMessage(sessionID, id, text string) model.MessageWithParts {
	return model.MessageWithParts{
		Info: model.Message{
			ID:        id,
			SessionID: sessionID,
			Role:      model.RoleUser,
			Time:      model.MessageTime{Created: 1000},
		},
		Parts: []model.Part{TextPart(sessionID, id, id+"-text", text)},
	}
}

// AssistantInfo returns assistant message metadata. A non-zero completed
// timestamp marks the message as finished.
func AssistantInfo(sessionID, id string, completed int64) model.Message {
	info := model.Message{
		ID:         id,
		SessionID:  sessionID,
		Role:       model.RoleAssistant,
		Time:       model.MessageTime{Created: 2000},
		ModelID:    "claude-sonnet",
		ProviderID: "anthropic",
	}
	if completed != 0 {
		info.Time.Completed = Ptr(completed)
	}
	return info
}

// AssistantMessage returns an assistant message holding the given parts.
func AssistantMessage(sessionID, id string, parts ...model.Part) model.MessageWithParts {
	return model.MessageWithParts{
		Info:  AssistantInfo(sessionID, id, 3000),
		Parts: parts,
	}
}

// TextPart returns a text part routed to the given session and message.
func TextPart(sessionID, messageID, id, text string) model.TextPart {
	return model.TextPart{
		PartHeader: model.PartHeader{ID: id, MessageID: messageID, SessionID: sessionID, Type: model.PartTypeText},
		Text:       text,
	}
}

// ReasoningPart returns a reasoning part routed to the given session and message.
func ReasoningPart(sessionID, messageID, id, text string) model.ReasoningPart {
	return model.ReasoningPart{
		PartHeader: model.PartHeader{ID: id, MessageID: messageID, SessionID: sessionID, Type: model.PartTypeReasoning},
		Text:       text,
	}
}

// ToolPart returns a tool part with the given status.
func ToolPart(sessionID, messageID, id, tool, status string) model.ToolPart {
	p := model.ToolPart{
		PartHeader: model.PartHeader{ID: id, MessageID: messageID, SessionID: sessionID, Type: model.PartTypeTool},
		Tool:       tool,
	}
	if status != "" {
		p.State = &model.ToolState{Status: status}
	}
	return p
}

// StepStartPart returns a step-start marker part.
func StepStartPart(sessionID, messageID, id string) model.StepStartPart {
	return model.StepStartPart{
		PartHeader: model.PartHeader{ID: id, MessageID: messageID, SessionID: sessionID, Type: model.PartTypeStepStart},
	}
}

// PartEvent builds a message.part.updated event, failing the test on error.
func PartEvent(t *testing.T, p model.Part, delta *string) model.Event {
	t.Helper()
	ev, err := model.PartUpdatedEvent(p, delta)
	if err != nil {
		t.Fatalf("building part event: %v", err)
	}
	return ev
}

// MessageEvent builds a message.updated event, failing the test on error.
func MessageEvent(t *testing.T, info model.Message) model.Event {
	t.Helper()
	ev, err := model.MessageUpdatedEvent(info)
	if err != nil {
		t.Fatalf("building message event: %v", err)
	}
	return ev
}

// SessionEvent builds a session.updated or session.deleted event.
func SessionEvent(t *testing.T, typ model.EventType, sess model.Session) model.Event {
	t.Helper()
	ev, err := model.SessionEvent(typ, sess)
	if err != nil {
		t.Fatalf("building session event: %v", err)
	}
	return ev
}
