package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tide-dev/tide/internal/model"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestListSessions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":"s1","projectID":"p","title":"First","time":{"created":1,"updated":2}},
			{"id":"s2","projectID":"p","title":"Shared","time":{"created":3,"updated":4},"share":{"url":"https://x"}}
		]`)
	})
	c := newTestServer(t, mux)

	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2", len(sessions))
	}
	if sessions[1].Share == nil || sessions[1].Share.URL != "https://x" {
		t.Errorf("share = %+v", sessions[1].Share)
	}
	if sessions[0].Time.Updated != 2 {
		t.Errorf("updated = %d, want 2", sessions[0].Time.Updated)
	}
}

func TestGetMessagesFiltersMalformedEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s1" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `[
			null,
			{"info":{"sessionID":"s1","role":"user"},"parts":[]},
			{"info":{"id":"m1","sessionID":"s1","role":"assistant","time":{"created":1,"completed":2}},
			 "parts":[null,{"id":"p1","messageID":"m1","sessionID":"s1","type":"text","text":"hi"},42,{"type":"text"}]}
		]`)
	})
	c := newTestServer(t, mux)

	msgs, err := c.GetMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	if len(msgs[0].Parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(msgs[0].Parts))
	}
	if tp, ok := msgs[0].Parts[0].(model.TextPart); !ok || tp.Text != "hi" {
		t.Errorf("part = %#v", msgs[0].Parts[0])
	}
	if !msgs[0].Info.IsCompleted() {
		t.Error("message should be completed")
	}
}

func TestSendMessageBody(t *testing.T) {
	var got model.ChatInput
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"info":{"id":"m9","sessionID":"s1","role":"assistant"},"parts":[]}`)
	})
	c := newTestServer(t, mux)

	in := model.NewTextInput("Hello", &model.ModelSelection{ProviderID: "anthropic", ModelID: "claude"}, "build")
	if err := c.SendMessage(context.Background(), "s1", in); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.Text() != "Hello" || got.Agent != "build" || got.Model == nil || got.Model.ModelID != "claude" {
		t.Errorf("server received %+v", got)
	}
}

func TestSessionCRUD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(model.Session{ID: "s1", Title: body["title"]})
	})
	mux.HandleFunc("PATCH /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(model.Session{ID: r.PathValue("id"), Title: body["title"]})
	})
	mux.HandleFunc("GET /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	})
	mux.HandleFunc("DELETE /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	s, err := c.CreateSession(ctx, "Plan")
	if err != nil || s.Title != "Plan" {
		t.Fatalf("CreateSession = %+v, %v", s, err)
	}
	s, err = c.UpdateSession(ctx, "s1", "Renamed")
	if err != nil || s.Title != "Renamed" || s.ID != "s1" {
		t.Fatalf("UpdateSession = %+v, %v", s, err)
	}
	if err := c.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	_, err = c.GetSession(ctx, "missing")
	if !IsNotFound(err) {
		t.Errorf("GetSession err = %v, want not found", err)
	}
}

func TestTransportErrorOnStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agent", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newTestServer(t, mux)

	_, err := c.GetAgents(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if te.Status != http.StatusInternalServerError || te.Body != "boom" || te.Op != "list agents" {
		t.Errorf("unexpected error: %+v", te)
	}
	if !strings.Contains(te.Error(), "500") {
		t.Errorf("Error() = %q", te.Error())
	}
}

func TestTransportErrorOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	_, err := c.GetProviders(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if te.Status != 0 || te.Err == nil {
		t.Errorf("unexpected error: %+v", te)
	}
}

func TestGetProvidersAndConfig(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config/providers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"providers":[{"id":"anthropic","name":"Anthropic","models":{"claude":{"id":"claude","name":"Claude"}}}],"default":{"anthropic":"claude"}}`)
	})
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"theme":"dark","model":"anthropic/claude"}`)
	})
	c := newTestServer(t, mux)

	providers, err := c.GetProviders(context.Background())
	if err != nil {
		t.Fatalf("GetProviders: %v", err)
	}
	if providers.Default["anthropic"] != "claude" || providers.Providers[0].Models["claude"].Name != "Claude" {
		t.Errorf("providers = %+v", providers)
	}
	cfg, err := c.GetConfig(context.Background())
	if err != nil || cfg.Model != "anthropic/claude" {
		t.Errorf("GetConfig = %+v, %v", cfg, err)
	}
}
