package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/testutil"
)

func assistant(parts ...model.Part) model.MessageWithParts {
	return testutil.AssistantMessage("s1", "m1", parts...)
}

func TestStreamPrinterWritesIncrementally(t *testing.T) {
	var buf bytes.Buffer
	p := NewStreamPrinter(&buf, false)

	p.Update(assistant(testutil.TextPart("s1", "m1", "p1", "Hel")))
	if buf.String() != "Hel" {
		t.Fatalf("after first update = %q", buf.String())
	}
	p.Update(assistant(testutil.TextPart("s1", "m1", "p1", "Hello")))
	p.Update(assistant(testutil.TextPart("s1", "m1", "p1", "Hello")))
	if buf.String() != "Hello" {
		t.Fatalf("after repeat update = %q", buf.String())
	}

	text := testutil.TextPart("s1", "m1", "p1", "Hello")
	p.Update(assistant(text, testutil.ToolPart("s1", "m1", "t1", "echo", model.ToolStatusRunning)))
	p.Update(assistant(text, testutil.ToolPart("s1", "m1", "t1", "echo", model.ToolStatusRunning)))
	p.Update(assistant(text, testutil.ToolPart("s1", "m1", "t1", "echo", model.ToolStatusCompleted)))
	p.Finish(nil)

	want := "Hello\n◐ echo\n✓ echo\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestStreamPrinterSkipsUserAndHiddenParts(t *testing.T) {
	var buf bytes.Buffer
	p := NewStreamPrinter(&buf, false)

	p.Update(testutil.UserMessage("s1", "u1", "question"))
	p.Update(assistant(
		testutil.StepStartPart("s1", "m1", "step"),
		testutil.ReasoningPart("s1", "m1", "r1", "pondering"),
		testutil.TextPart("s1", "m1", "p1", "answer\n"),
	))
	p.Finish(nil)

	if buf.String() != "answer\n" {
		t.Errorf("output = %q, want only the assistant text", buf.String())
	}
}

func TestStreamPrinterShowsReasoning(t *testing.T) {
	var buf bytes.Buffer
	p := NewStreamPrinter(&buf, true)

	p.Update(assistant(testutil.ReasoningPart("s1", "m1", "r1", "pondering")))
	p.Update(assistant(
		testutil.ReasoningPart("s1", "m1", "r1", "pondering"),
		testutil.TextPart("s1", "m1", "p1", "answer"),
	))
	p.Finish(nil)

	want := "Thinking: pondering\nanswer\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestStreamPrinterIgnoresRewrites(t *testing.T) {
	var buf bytes.Buffer
	p := NewStreamPrinter(&buf, false)

	p.Update(assistant(testutil.TextPart("s1", "m1", "p1", "draft")))
	p.Update(assistant(testutil.TextPart("s1", "m1", "p1", "final")))
	if buf.String() != "draft" {
		t.Errorf("output = %q, a non-extending rewrite must not be printed", buf.String())
	}
}

func TestStreamPrinterNotice(t *testing.T) {
	var buf bytes.Buffer
	p := NewStreamPrinter(&buf, false)

	p.Waiting(true)
	p.Update(assistant(testutil.TextPart("s1", "m1", "p1", "partial")))
	p.Notice("slow")
	p.Notice("")
	if buf.String() != "partial\nslow\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{42 * time.Second, "42.0s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
