package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tide-dev/tide/internal/model"
)

// Models served by the mock provider.
const (
	MockProviderID = "mock"
	MockModelID    = "mock-echo-1"
)

const keepAliveInterval = 15 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "subscribers": s.events.count()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.state.Sessions())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	sess := s.state.CreateSession(strings.TrimSpace(req.Title))
	s.logger.Info().Str("session_id", sess.ID).Msg("session created")
	s.publishSession(model.EventSessionUpdated, sess)
	writeJSON(w, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.state.Session(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	sess, ok := s.state.RenameSession(chi.URLParam(r, "id"), title)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.publishSession(model.EventSessionUpdated, sess)
	writeJSON(w, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.state.DeleteSession(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.logger.Info().Str("session_id", sess.ID).Msg("session deleted")
	s.publishSession(model.EventSessionDeleted, sess)
	writeJSON(w, true)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.state.Messages(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var in model.ChatInput
	if !readJSON(w, r, &in) {
		return
	}
	text := strings.TrimSpace(in.Text())
	if text == "" {
		http.Error(w, "message has no text", http.StatusBadRequest)
		return
	}
	sess, ok := s.state.Session(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	msgID := newID(messagePrefix)
	user := model.MessageWithParts{
		Info: model.Message{
			ID:        msgID,
			SessionID: sessionID,
			Role:      model.RoleUser,
			Time:      model.MessageTime{Created: nowMillis()},
		},
		Parts: []model.Part{model.TextPart{
			PartHeader: header(sessionID, msgID, model.PartTypeText),
			Text:       text,
		}},
	}

	if _, ok := s.state.AddMessage(user); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.metrics.messages.WithLabelValues(string(model.RoleUser)).Inc()
	s.logger.Info().Str("session_id", sessionID).Str("message_id", user.Info.ID).Msg("prompt received")
	s.publishMessage(user.Info)

	if strings.HasPrefix(sess.Title, newSessionTitle+" - ") {
		if renamed, ok := s.state.RenameSession(sessionID, titleFrom(text)); ok {
			s.publishSession(model.EventSessionUpdated, renamed)
		}
	}

	s.startReply(sessionID, text, in.Model)
	writeJSON(w, user)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, []model.Agent{
		{Name: "build", Description: "Default agent with every tool enabled"},
		{Name: "plan", Description: "Read-only agent for planning changes"},
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, model.ServerConfig{Model: MockProviderID + "/" + MockModelID})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	info := model.ModelInfo{ID: MockModelID, Name: "Mock Echo"}
	info.Limit.Context = 128000
	info.Limit.Output = 4096
	writeJSON(w, model.ProvidersResponse{
		Providers: []model.Provider{{
			ID:     MockProviderID,
			Name:   "Mock",
			Models: map[string]model.ModelInfo{MockModelID: info},
		}},
		Default: map[string]string{MockProviderID: MockModelID},
	})
}

// handleEvents streams published events as server-sent events. Every
// stream opens with server.connected.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.events.subscribe()
	defer s.events.unsubscribe(ch)
	s.metrics.subscribers.Inc()
	defer s.metrics.subscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	connected, _ := json.Marshal(model.Event{Type: model.EventServerConnected, Properties: json.RawMessage(`{}`)})
	if _, err := fmt.Fprintf(w, "data: %s\n\n", connected); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case data := <-ch:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// readJSON decodes the request body into v. An empty body leaves v unchanged.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encoding response: %v", err), http.StatusInternalServerError)
	}
}
