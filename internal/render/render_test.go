package render

import (
	"strings"
	"testing"

	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/testutil"
)

func TestDisplayable(t *testing.T) {
	synthetic := testutil.TextPart("s1", "m1", "p0", "system note")
	synthetic.Synthetic = true

	tests := []struct {
		name string
		part model.Part
		want bool
	}{
		{"text", testutil.TextPart("s1", "m1", "p1", "hello"), true},
		{"blank text", testutil.TextPart("s1", "m1", "p1", "  \n"), false},
		{"synthetic text", synthetic, false},
		{"reasoning", testutil.ReasoningPart("s1", "m1", "r1", "hmm"), true},
		{"empty reasoning", testutil.ReasoningPart("s1", "m1", "r1", ""), false},
		{"tool", testutil.ToolPart("s1", "m1", "t1", "bash", ""), true},
		{"step-start", testutil.StepStartPart("s1", "m1", "x"), false},
		{"step-finish", model.StepFinishPart{PartHeader: model.PartHeader{ID: "f", Type: model.PartTypeStepFinish}}, false},
		{"patch", model.PatchPart{PartHeader: model.PartHeader{ID: "pa", Type: model.PartTypePatch}}, false},
		{"unknown", model.UnknownPart{PartHeader: model.PartHeader{ID: "u", Type: "future"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Displayable(tt.part); got != tt.want {
				t.Errorf("Displayable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVisibleSkipsEmptyMessages(t *testing.T) {
	msgs := []model.MessageWithParts{
		testutil.UserMessage("s1", "u1", "hi"),
		testutil.AssistantMessage("s1", "m1", testutil.StepStartPart("s1", "m1", "x")),
		testutil.AssistantMessage("s1", "m2",
			testutil.StepStartPart("s1", "m2", "x"),
			testutil.TextPart("s1", "m2", "p", "answer"),
		),
	}
	got := Visible(msgs)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Info.ID != "m2" || len(got[1].Parts) != 1 {
		t.Errorf("unexpected message: %+v", got[1])
	}
	if len(msgs[2].Parts) != 2 {
		t.Error("input must not be modified")
	}
}

func TestPlainTranscript(t *testing.T) {
	failed := testutil.ToolPart("s1", "m1", "t2", "edit", model.ToolStatusError)
	failed.State.Error = "permission denied"

	msgs := []model.MessageWithParts{
		testutil.UserMessage("s1", "u1", "list files"),
		testutil.AssistantMessage("s1", "m1",
			testutil.ReasoningPart("s1", "m1", "r1", "I should run ls"),
			testutil.ToolPart("s1", "m1", "t1", "bash", model.ToolStatusCompleted),
			failed,
			testutil.TextPart("s1", "m1", "p1", "Here they are."),
		),
	}

	out := Plain().Transcript(msgs, true)
	for _, want := range []string{
		"You",
		"list files",
		"Assistant · claude-sonnet",
		"Thinking: I should run ls",
		"✓ bash",
		"✗ edit",
		"permission denied",
		"Here they are.",
		"Waiting for response...",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "list files") > strings.Index(out, "Here they are.") {
		t.Error("messages rendered out of order")
	}
}

func TestProvisionalHeader(t *testing.T) {
	msg := model.NewOptimisticUserMessage("s1", "hello", 1)
	out := Plain().Message(msg)
	if !strings.Contains(out, "You (sending)") {
		t.Errorf("output = %q", out)
	}
}

func TestMarkdownRenderer(t *testing.T) {
	r, err := New("notty", 60)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := r.Markdown("# Title\n\nSome **bold** text")
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Errorf("markdown output = %q", out)
	}
	if r.Width() != 60 {
		t.Errorf("Width = %d, want 60", r.Width())
	}
}

func TestAssistantText(t *testing.T) {
	m := testutil.AssistantMessage("s1", "m1",
		testutil.TextPart("s1", "m1", "a", "Hello, "),
		testutil.ReasoningPart("s1", "m1", "r", "ignored"),
		testutil.TextPart("s1", "m1", "b", "world"),
	)
	if got := AssistantText(m); got != "Hello, world" {
		t.Errorf("AssistantText = %q", got)
	}
}
