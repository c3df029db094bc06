// Package log provides structured event logging.
// Events are appended as JSON lines to log.jsonl in the tide config directory.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event type constants.
const (
	EventAppStarted         = "app_started"
	EventSessionActivated   = "session_activated"
	EventSnapshotApplied    = "snapshot_applied"
	EventSnapshotDiscarded  = "snapshot_discarded"
	EventSnapshotFailed     = "snapshot_failed"
	EventEventDropped       = "event_dropped"
	EventMessageCompleted   = "message_completed"
	EventMessageSubmitted   = "message_submitted"
	EventSendFailed         = "send_failed"
	EventWaitingSlow        = "waiting_slow"
	EventStreamConnected    = "stream_connected"
	EventStreamDisconnected = "stream_disconnected"
	EventSessionDeleted     = "session_deleted"
)

// FileName is the log file name inside the config directory.
const FileName = "log.jsonl"

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time       time.Time      `json:"time"`
	Event      string         `json:"event"`
	SessionID  string         `json:"session,omitempty"`
	MessageID  string         `json:"message,omitempty"`
	PartID     string         `json:"part,omitempty"`
	Type       string         `json:"type,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Count      int            `json:"count,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Logger writes append-only JSONL events to a log file.
// A nil *Logger is valid and discards everything.
type Logger struct {
	path string
	mu   sync.Mutex
	file *os.File
	out  io.Writer
	zl   zerolog.Logger
}

// NewLogger creates a Logger that writes to log.jsonl inside dir.
// Creates dir if it does not already exist.
// Does not truncate an existing log file.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		path: path,
		file: f,
		out:  f,
		zl:   newZerolog(f),
	}, nil
}

// NewWriterLogger creates a Logger that writes to w instead of a file.
// ReadAll is not available on such a logger.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w, zl: newZerolog(w)}
}

func newZerolog(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Path returns the log file path, or "" for a writer-backed logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single LogEvent as one JSON line.
// The timestamp is taken at write time unless event.Time is set.
// Thread-safe via mutex.
func (l *Logger) Append(event LogEvent) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	zl := l.zl
	if !event.Time.IsZero() {
		zl = zerolog.New(l.out).With().Time(zerolog.TimestampFieldName, event.Time.UTC()).Logger()
	}

	e := zl.Log().Str("event", event.Event)
	if event.SessionID != "" {
		e = e.Str("session", event.SessionID)
	}
	if event.MessageID != "" {
		e = e.Str("message", event.MessageID)
	}
	if event.PartID != "" {
		e = e.Str("part", event.PartID)
	}
	if event.Type != "" {
		e = e.Str("type", event.Type)
	}
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	if event.Count != 0 {
		e = e.Int("count", event.Count)
	}
	if event.DurationMs != 0 {
		e = e.Int64("duration_ms", event.DurationMs)
	}
	if len(event.Data) > 0 {
		e = e.Interface("data", event.Data)
	}
	e.Send()

	return nil
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadAll reads and parses all events from the log file.
// Returns an empty slice (not an error) if the file does not exist.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	if l == nil || l.path == "" {
		return []LogEvent{}, nil
	}
	return ReadFile(l.path)
}

// ReadFile parses all events from the JSONL file at path.
func ReadFile(path string) ([]LogEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse log line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return events, nil
}
