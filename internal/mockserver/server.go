// Package mockserver is a stand-in agent backend. It serves the session,
// message and event endpoints the client uses and streams a scripted
// assistant reply for every prompt, which makes the client usable and
// testable without a real backend.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tide-dev/tide/internal/model"
)

// DefaultStepDelay is the pause between streamed reply events.
const DefaultStepDelay = 40 * time.Millisecond

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Empty binds a random localhost port.
	Addr string
	// StepDelay paces the streamed reply. Zero uses DefaultStepDelay.
	StepDelay time.Duration
	// Project is reported as the projectID of created sessions.
	Project string
	Logger  zerolog.Logger
}

// Server is the mock backend HTTP server.
type Server struct {
	state   *State
	events  *broker
	metrics *Metrics
	logger  zerolog.Logger
	delay   time.Duration

	router   *chi.Mux
	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	stop   sync.Once
	wg     sync.WaitGroup
}

// NewServer creates a server and binds its listener.
func NewServer(opts Options) (*Server, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mockserver: binding listener: %w", err)
	}
	s := newServer(opts)
	s.listener = ln
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

// newServer builds the server without a listener, for httptest.
func newServer(opts Options) *Server {
	delay := opts.StepDelay
	if delay == 0 {
		delay = DefaultStepDelay
	}
	project := opts.Project
	if project == "" {
		project = "mock"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		state:   NewState(project),
		events:  newBroker(),
		metrics: newMetrics(),
		logger:  opts.Logger,
		delay:   delay,
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.metrics.instrument)
	r.Use(chimw.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Cache-Control"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/health", s.handleHealth)

	r.Get("/event", s.handleEvents)
	r.Get("/agent", s.handleAgents)
	r.Get("/config", s.handleConfig)
	r.Get("/config/providers", s.handleProviders)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Patch("/", s.handleUpdateSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/message", s.handleListMessages)
			r.Post("/message", s.handleSendMessage)
		})
	})
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// State exposes the served sessions and transcripts.
func (s *Server) State() *State {
	return s.state
}

// Metrics exposes the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the address the server is listening on (e.g. "127.0.0.1:12345").
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL returns the base URL clients should use.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Start begins serving HTTP requests. Call in a goroutine. It returns nil
// after Stop.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.Addr()).Msg("mock server listening")
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop ends event streams and pending replies and closes the server.
func (s *Server) Stop() error {
	var err error
	s.stop.Do(func() {
		close(s.stopCh)
		s.cancel()
		s.wg.Wait()
		if s.server != nil {
			err = s.server.Close()
		}
	})
	return err
}

// Publish sends ev to every connected event stream.
func (s *Server) Publish(ev model.Event) {
	n, err := s.events.publish(ev)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("encoding event")
		return
	}
	s.metrics.events.WithLabelValues(string(ev.Type)).Inc()
	s.logger.Debug().Str("type", string(ev.Type)).Int("subscribers", n).Msg("event published")
}

// Subscribers returns the number of connected event streams.
func (s *Server) Subscribers() int {
	return s.events.count()
}

func (s *Server) publishSession(typ model.EventType, sess model.Session) {
	ev, err := model.SessionEvent(typ, sess)
	if err != nil {
		s.logger.Error().Err(err).Msg("building session event")
		return
	}
	s.Publish(ev)
}
