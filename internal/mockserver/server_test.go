package mockserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tide-dev/tide/internal/api"
	"github.com/tide-dev/tide/internal/engine"
	"github.com/tide-dev/tide/internal/events"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/render"
)

func startTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := newServer(Options{StepDelay: time.Millisecond, Logger: zerolog.Nop()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = s.Stop() })
	return s, ts
}

// subscribe opens the event stream and waits for server.connected.
func subscribe(t *testing.T, url string) <-chan model.Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch := api.NewStreamClient(url, 50*time.Millisecond, nil).Subscribe(ctx)
	nextEvent(t, ch, func(ev model.Event) bool { return ev.Type == model.EventServerConnected })
	return ch
}

func nextEvent(t *testing.T, ch <-chan model.Event, match func(model.Event) bool) model.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event stream closed")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return model.Event{}
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := startTestServer(t)
	ctx := context.Background()
	client := api.NewClient(ts.URL, time.Second)
	stream := subscribe(t, ts.URL)

	sess, err := client.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !strings.HasPrefix(sess.ID, sessionPrefix) {
		t.Errorf("id = %q, want %s prefix", sess.ID, sessionPrefix)
	}
	if !strings.HasPrefix(sess.Title, newSessionTitle) {
		t.Errorf("title = %q", sess.Title)
	}

	other, err := client.CreateSession(ctx, "second")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	list, err := client.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list))
	}

	renamed, err := client.UpdateSession(ctx, sess.ID, "renamed")
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if renamed.Title != "renamed" {
		t.Errorf("title = %q, want renamed", renamed.Title)
	}
	ev := nextEvent(t, stream, func(ev model.Event) bool {
		if ev.Type != model.EventSessionUpdated {
			return false
		}
		p, err := ev.SessionUpdated()
		return err == nil && p.Info.Title == "renamed"
	})
	if p, _ := ev.SessionUpdated(); p.Info.ID != sess.ID {
		t.Errorf("session.updated for %q, want %q", p.Info.ID, sess.ID)
	}

	if err := client.DeleteSession(ctx, other.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	ev = nextEvent(t, stream, func(ev model.Event) bool { return ev.Type == model.EventSessionDeleted })
	if p, _ := ev.SessionUpdated(); p.Info.ID != other.ID {
		t.Errorf("session.deleted for %q, want %q", p.Info.ID, other.ID)
	}

	if _, err := client.GetSession(ctx, other.ID); !api.IsNotFound(err) {
		t.Errorf("GetSession after delete err = %v, want 404", err)
	}
	if err := client.DeleteSession(ctx, other.ID); !api.IsNotFound(err) {
		t.Errorf("second delete err = %v, want 404", err)
	}
}

func TestSendMessageStreamsReply(t *testing.T) {
	_, ts := startTestServer(t)
	ctx := context.Background()
	client := api.NewClient(ts.URL, time.Second)
	stream := subscribe(t, ts.URL)

	sess, err := client.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := client.SendMessage(ctx, sess.ID, model.NewTextInput("hello there", nil, "")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	var (
		kinds     []model.PartType
		deltas    strings.Builder
		toolFinal string
		assistant string
	)
	for {
		ev := nextEvent(t, stream, func(model.Event) bool { return true })
		switch ev.Type {
		case model.EventMessagePartUpdated:
			p, err := ev.PartUpdated()
			if err != nil {
				t.Fatalf("PartUpdated: %v", err)
			}
			if p.Part.Header().MessageID != assistant {
				continue
			}
			typ := p.Part.Header().Type
			if len(kinds) == 0 || kinds[len(kinds)-1] != typ {
				kinds = append(kinds, typ)
			}
			if p.Delta != nil {
				deltas.WriteString(*p.Delta)
			}
			if tp, ok := p.Part.(model.ToolPart); ok {
				toolFinal = tp.Status()
			}
			continue
		case model.EventMessageUpdated:
			p, err := ev.MessageUpdated()
			if err != nil {
				t.Fatalf("MessageUpdated: %v", err)
			}
			if p.Info.Role != model.RoleAssistant {
				continue
			}
			assistant = p.Info.ID
			if p.Info.ModelID != MockModelID {
				t.Errorf("modelID = %q", p.Info.ModelID)
			}
			if !p.Info.IsCompleted() {
				continue
			}
		default:
			continue
		}
		break
	}

	want := []model.PartType{
		model.PartTypeStepStart,
		model.PartTypeReasoning,
		model.PartTypeTool,
		model.PartTypeText,
		model.PartTypeStepFinish,
	}
	if len(kinds) != len(want) {
		t.Fatalf("part sequence = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("part %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if deltas.String() != ReplyText("hello there") {
		t.Errorf("deltas = %q", deltas.String())
	}
	if toolFinal != model.ToolStatusCompleted {
		t.Errorf("tool status = %q", toolFinal)
	}

	msgs, err := client.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Info.Role != model.RoleUser || render.AssistantText(msgs[1]) != ReplyText("hello there") {
		t.Errorf("transcript = %+v", msgs)
	}

	got, err := client.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Title != "hello there" {
		t.Errorf("title = %q, want the first prompt", got.Title)
	}
}

func TestSendMessageRejectsBadInput(t *testing.T) {
	s, ts := startTestServer(t)
	sess := s.State().CreateSession("x")

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"empty text", "/session/" + sess.ID + "/message", `{"parts":[{"type":"text","text":"  "}]}`, http.StatusBadRequest},
		{"malformed body", "/session/" + sess.ID + "/message", `{"parts":`, http.StatusBadRequest},
		{"unknown session", "/session/ses_missing/message", `{"parts":[{"type":"text","text":"hi"}]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.path, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCatalogEndpoints(t *testing.T) {
	_, ts := startTestServer(t)
	ctx := context.Background()
	client := api.NewClient(ts.URL, time.Second)

	agents, err := client.GetAgents(ctx)
	if err != nil || len(agents) == 0 {
		t.Fatalf("GetAgents = %v, %v", agents, err)
	}
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Model != MockProviderID+"/"+MockModelID {
		t.Errorf("config model = %q", cfg.Model)
	}
	providers, err := client.GetProviders(ctx)
	if err != nil {
		t.Fatalf("GetProviders: %v", err)
	}
	if providers.Default[MockProviderID] != MockModelID {
		t.Errorf("default = %v", providers.Default)
	}
	if _, ok := providers.Providers[0].Models[MockModelID]; !ok {
		t.Errorf("models = %v", providers.Providers[0].Models)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := startTestServer(t)
	if _, err := api.NewClient(ts.URL, time.Second).ListSessions(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `tide_mock_http_requests_total{method="GET"`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
}

func TestEngineAgainstMockServer(t *testing.T) {
	_, ts := startTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(ts.URL, time.Second)
	sess, err := client.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	updates := make(chan engine.Update, 512)
	eng := engine.New(engine.Options{WaitingTimeout: time.Minute})
	loop := engine.NewLoop(eng, client, func(_ *engine.Engine, u engine.Update) { updates <- u })
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	hub := events.NewHub()
	hub.Subscribe(events.TopicAll, loop.Deliver)
	connected := make(chan struct{}, 1)
	hub.Subscribe(string(model.EventServerConnected), func(model.Event) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	go hub.Pump(ctx, api.NewStreamClient(ts.URL, 50*time.Millisecond, nil).Subscribe(ctx))

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("event stream never connected")
	}

	waitUpdate := func(kind engine.UpdateKind) engine.Update {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case u := <-updates:
				if u.Kind == kind {
					return u
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", kind)
				return engine.Update{}
			}
		}
	}

	loop.Activate(sess.ID)
	waitUpdate(engine.UpdateSnapshot)

	loop.Send("ping", nil, "")
	u := waitUpdate(engine.UpdateCompleted)
	if u.Message == nil || u.Message.Role != model.RoleAssistant {
		t.Fatalf("completed = %+v", u.Message)
	}

	var (
		msgs    []model.MessageWithParts
		waiting bool
		last    string
	)
	settled := func() bool {
		if len(msgs) != 2 || waiting {
			return false
		}
		for _, m := range msgs {
			if m.Info.IsProvisional() {
				return false
			}
		}
		return render.AssistantText(msgs[1]) == ReplyText("ping")
	}
	for i := 0; i < 200; i++ {
		loop.Do(func(e *engine.Engine) {
			msgs = e.Messages()
			waiting = e.Waiting()
			last = e.LastModelID()
		})
		if settled() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !settled() {
		t.Fatalf("transcript never settled: waiting=%v messages=%+v", waiting, msgs)
	}
	if last != MockModelID {
		t.Errorf("last model = %q, want %q", last, MockModelID)
	}
}

func TestServerStartStop(t *testing.T) {
	s, err := NewServer(Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	resp, err := http.Get(s.URL() + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start returned %v after Stop", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestTitleFrom(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"short prompt", "short prompt"},
		{"  first line\nsecond line", "first line"},
		{strings.Repeat("a", 60), strings.Repeat("a", 47) + "..."},
	}
	for _, tt := range tests {
		if got := titleFrom(tt.in); got != tt.want {
			t.Errorf("titleFrom(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChunksConcatenate(t *testing.T) {
	text := "one two  three"
	got := chunks(text)
	if strings.Join(got, "") != text {
		t.Errorf("chunks = %q", got)
	}
	if len(got) != 4 {
		t.Errorf("chunks = %d, want 4", len(got))
	}
}
