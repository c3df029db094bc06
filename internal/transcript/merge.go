package transcript

import (
	"github.com/tide-dev/tide/internal/model"
)

// Merge applies an incoming part update to an existing part with the same id.
// It returns false when the two parts have different types.
//
//	text      + text      delta appends, otherwise the text is replaced
//	reasoning + reasoning text is replaced, deltas never accumulate
//	tool      + tool      fields present in the update overwrite the old ones
//	other     + same type the update replaces the part
func Merge(existing, incoming model.Part, delta *string) (model.Part, bool) {
	if existing.Header().Type != incoming.Header().Type {
		return nil, false
	}

	switch old := existing.(type) {
	case model.TextPart:
		in, ok := incoming.(model.TextPart)
		if !ok {
			return incoming, true
		}
		if delta != nil {
			old.Text += *delta
			return old, true
		}
		old.Text = in.Text
		return old, true

	case model.ReasoningPart:
		in, ok := incoming.(model.ReasoningPart)
		if !ok {
			return incoming, true
		}
		old.Text = in.Text
		return old, true

	case model.ToolPart:
		in, ok := incoming.(model.ToolPart)
		if !ok {
			return incoming, true
		}
		return mergeTool(old, in), true

	default:
		return incoming, true
	}
}

// mergeTool overlays the non-empty fields of in onto old. State is replaced
// as a whole: a status transition carries the complete new state.
func mergeTool(old, in model.ToolPart) model.ToolPart {
	if in.MessageID != "" {
		old.MessageID = in.MessageID
	}
	if in.SessionID != "" {
		old.SessionID = in.SessionID
	}
	if in.Tool != "" {
		old.Tool = in.Tool
	}
	if in.CallID != "" {
		old.CallID = in.CallID
	}
	if in.State != nil {
		old.State = in.State
	}
	return old
}

// seed prepares a part that is new to its message. A text part announced
// with empty text and a delta starts from the delta; a non-empty text is
// already the accumulated value and is kept as sent.
func seed(p model.Part, delta *string) model.Part {
	if t, ok := p.(model.TextPart); ok && delta != nil && t.Text == "" {
		t.Text = *delta
		return t
	}
	return p
}
