package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/testutil"
)

// fakeBackend serves canned transcripts. A fetch for a session with a gate
// blocks until the gate is closed.
type fakeBackend struct {
	mu       sync.Mutex
	messages map[string][]model.MessageWithParts
	gates    map[string]chan struct{}
	sendErr  error
	sent     []model.ChatInput
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages: make(map[string][]model.MessageWithParts),
		gates:    make(map[string]chan struct{}),
	}
}

func (b *fakeBackend) GetMessages(ctx context.Context, sessionID string) ([]model.MessageWithParts, error) {
	b.mu.Lock()
	gate := b.gates[sessionID]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.MessageWithParts(nil), b.messages[sessionID]...), nil
}

func (b *fakeBackend) SendMessage(_ context.Context, _ string, in model.ChatInput) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, in)
	return b.sendErr
}

func (b *fakeBackend) set(sessionID string, msgs ...model.MessageWithParts) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[sessionID] = msgs
}

type loopHarness struct {
	loop    *Loop
	backend *fakeBackend
	updates chan Update
	logBuf  *bytes.Buffer
}

func startLoop(t *testing.T, timeout time.Duration) *loopHarness {
	t.Helper()
	h := &loopHarness{
		backend: newFakeBackend(),
		updates: make(chan Update, 256),
		logBuf:  &bytes.Buffer{},
	}
	eng := New(Options{Logger: log.NewWriterLogger(h.logBuf), WaitingTimeout: timeout})
	h.loop = NewLoop(eng, h.backend, func(_ *Engine, u Update) { h.updates <- u })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = h.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func (h *loopHarness) waitFor(t *testing.T, kind UpdateKind) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-h.updates:
			if u.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s update", kind)
			return Update{}
		}
	}
}

func (h *loopHarness) messages() []model.MessageWithParts {
	var out []model.MessageWithParts
	h.loop.Do(func(e *Engine) { out = e.Messages() })
	return out
}

func TestLoopSwitchWhileFetchPending(t *testing.T) {
	h := startLoop(t, time.Hour)
	gate := make(chan struct{})
	h.backend.gates["s1"] = gate
	h.backend.set("s1", testutil.UserMessage("s1", "u1", "from s1"))
	h.backend.set("s2", testutil.UserMessage("s2", "u2", "from s2"))

	h.loop.Activate("s1")
	h.loop.Activate("s2")
	h.waitFor(t, UpdateSnapshot)
	before := h.messages()
	if len(before) != 1 || before[0].Info.ID != "u2" {
		t.Fatalf("s2 transcript = %+v", before)
	}

	close(gate)

	discarded := false
	for i := 0; i < 200 && !discarded; i++ {
		h.loop.Do(func(*Engine) {
			discarded = strings.Contains(h.logBuf.String(), `"reason":"session no longer active"`)
		})
		if !discarded {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !discarded {
		t.Fatal("late s1 snapshot was never processed")
	}

	after := h.messages()
	if len(after) != 1 || after[0].Info.ID != "u2" {
		t.Errorf("s2 transcript changed by late s1 fetch: %+v", after)
	}
}

func TestLoopSendStreamAndComplete(t *testing.T) {
	h := startLoop(t, time.Hour)
	h.loop.Activate("s1")
	h.waitFor(t, UpdateSnapshot)

	h.loop.Send("Hi", nil, "")
	h.waitFor(t, UpdateWaiting)

	msgs := h.messages()
	if len(msgs) != 1 || !msgs[0].Info.IsProvisional() {
		t.Fatalf("expected provisional message, got %+v", msgs)
	}

	final := []model.MessageWithParts{
		testutil.UserMessage("s1", "u1", "Hi"),
		testutil.AssistantMessage("s1", "m1", testutil.TextPart("s1", "m1", "p1", "Hello")),
	}
	h.backend.set("s1", final...)

	part := testutil.TextPart("s1", "m1", "p1", "")
	h.loop.Deliver(testutil.MessageEvent(t, testutil.AssistantInfo("s1", "m1", 0)))
	h.loop.Deliver(testutil.PartEvent(t, part, testutil.Ptr("Hel")))
	h.loop.Deliver(testutil.PartEvent(t, part, testutil.Ptr("lo")))
	h.waitFor(t, UpdateWaiting)

	h.loop.Deliver(testutil.MessageEvent(t, testutil.AssistantInfo("s1", "m1", 3000)))
	u := h.waitFor(t, UpdateCompleted)
	if u.Message == nil || u.Message.ID != "m1" {
		t.Errorf("completed message = %+v", u.Message)
	}
	h.waitFor(t, UpdateSnapshot)

	got := h.messages()
	if len(got) != 2 {
		t.Fatalf("messages = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.Info.IsProvisional() {
			t.Error("provisional message should be replaced by the snapshot")
		}
	}
	if tp := got[1].Parts[0].(model.TextPart); tp.Text != "Hello" {
		t.Errorf("assistant text = %q", tp.Text)
	}

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if len(h.backend.sent) != 1 || h.backend.sent[0].Text() != "Hi" {
		t.Errorf("sent = %+v", h.backend.sent)
	}
}

func TestLoopSendFailureRollsBack(t *testing.T) {
	h := startLoop(t, time.Hour)
	h.backend.sendErr = errors.New("backend down")
	h.loop.Activate("s1")
	h.waitFor(t, UpdateSnapshot)

	h.loop.Send("Hi", nil, "")
	u := h.waitFor(t, UpdateSendFailed)
	if u.Err == nil || !strings.Contains(u.Err.Error(), "backend down") {
		t.Errorf("err = %v", u.Err)
	}

	var waiting bool
	var notice string
	h.loop.Do(func(e *Engine) {
		waiting = e.Waiting()
		notice = e.Notice()
	})
	if waiting {
		t.Error("waiting should be cleared after a failed send")
	}
	if !strings.Contains(notice, "backend down") {
		t.Errorf("notice = %q", notice)
	}
	if len(h.messages()) != 0 {
		t.Error("provisional message should be rolled back")
	}
}

func TestLoopSlowResponseNotice(t *testing.T) {
	h := startLoop(t, 10*time.Millisecond)
	h.loop.Activate("s1")
	h.waitFor(t, UpdateSnapshot)

	h.loop.Send("Hi", nil, "")
	h.waitFor(t, UpdateNotice)

	var waiting bool
	var notice string
	h.loop.Do(func(e *Engine) {
		waiting = e.Waiting()
		notice = e.Notice()
	})
	if !waiting {
		t.Error("the timer must not end the wait")
	}
	if notice != NoticeSlow {
		t.Errorf("notice = %q, want %q", notice, NoticeSlow)
	}
}

func TestLoopEmptyInputReported(t *testing.T) {
	h := startLoop(t, time.Hour)
	h.loop.Activate("s1")
	h.waitFor(t, UpdateSnapshot)

	h.loop.Send("   ", nil, "")
	u := h.waitFor(t, UpdateSendFailed)
	if !errors.Is(u.Err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", u.Err)
	}
}

func TestLoopDoAfterStop(t *testing.T) {
	eng := New(Options{})
	loop := NewLoop(eng, newFakeBackend(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
	if loop.Do(func(*Engine) {}) {
		t.Error("Do should report false once the loop stopped")
	}
}
