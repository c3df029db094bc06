package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
)

// DefaultReconnectDelay is the pause between event stream reconnects.
const DefaultReconnectDelay = 5 * time.Second

// StreamClient reads the backend's server-sent event stream at /event and
// reconnects after failures until stopped.
type StreamClient struct {
	baseURL string
	http    *http.Client
	delay   time.Duration
	logger  *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewStreamClient returns a StreamClient for baseURL. logger may be nil.
func NewStreamClient(baseURL string, reconnectDelay time.Duration, logger *log.Logger) *StreamClient {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &StreamClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client timeout: the stream stays open indefinitely.
		http:   &http.Client{},
		delay:  reconnectDelay,
		logger: logger,
	}
}

// Subscribe starts reading the stream in the background. Events are
// delivered in arrival order. The channel is closed once ctx is done or
// Stop is called.
func (s *StreamClient) Subscribe(ctx context.Context) <-chan model.Event {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan model.Event, 128)
	go s.run(ctx, out)
	return out
}

// Stop ends the subscription.
func (s *StreamClient) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *StreamClient) run(ctx context.Context, out chan<- model.Event) {
	defer close(out)
	for {
		err := s.stream(ctx, out)
		if ctx.Err() != nil {
			return
		}
		_ = s.logger.Append(log.LogEvent{
			Event: log.EventStreamDisconnected,
			Error: errString(err),
			Data:  map[string]any{"retry_in": s.delay.String()},
		})

		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stream holds one connection open and forwards its events. It always
// returns a non-nil error describing why the connection ended.
func (s *StreamClient) stream(ctx context.Context, out chan<- model.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/event", nil)
	if err != nil {
		return &TransportError{Op: "subscribe", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.http.Do(req)
	if err != nil {
		return &TransportError{Op: "subscribe", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: "subscribe", Status: resp.StatusCode}
	}
	_ = s.logger.Append(log.LogEvent{Event: log.EventStreamConnected, Data: map[string]any{"url": s.baseURL}})

	err = ReadEvents(resp.Body, func(data []byte) bool {
		ev, perr := model.ParseEvent(data)
		if perr != nil {
			_ = s.logger.Append(log.LogEvent{Event: log.EventEventDropped, Reason: perr.Error()})
			return true
		}
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	})
	if err != nil {
		return &TransportError{Op: "read event stream", Err: err}
	}
	return &TransportError{Op: "read event stream", Err: io.EOF}
}

// ReadEvents parses a server-sent event stream from r and calls fn with the
// data of each event. Multi-line data fields are joined with "\n"; comments
// and other fields are ignored. Reading stops when fn returns false or r
// is exhausted.
func ReadEvents(r io.Reader, fn func(data []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var data strings.Builder
	pending := false
	dispatch := func() bool {
		if !pending {
			return true
		}
		payload := data.String()
		data.Reset()
		pending = false
		return fn([]byte(payload))
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !dispatch() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			value = strings.TrimPrefix(value, " ")
			if pending {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			pending = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning event stream: %w", err)
	}
	dispatch()
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
