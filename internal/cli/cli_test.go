package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tide-dev/tide/internal/config"
	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/mockserver"
	"github.com/tide-dev/tide/internal/model"
)

// run executes the tide command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// startMock runs a mock backend and returns it with a config directory
// pointing at it.
func startMock(t *testing.T) (*mockserver.Server, string) {
	t.Helper()
	t.Setenv(config.EnvServerURL, "")

	srv, err := mockserver.NewServer(mockserver.Options{StepDelay: time.Millisecond, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop() })

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.URL = srv.URL()
	if err := config.WriteConfig(dir, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	return srv, dir
}

func TestConfigSetAndShow(t *testing.T) {
	t.Setenv(config.EnvPolishAPIKey, "")
	t.Setenv(config.EnvOpenAIAPIKey, "")
	dir := t.TempDir()

	if _, err := run(t, "--config-dir", dir, "config", "set", "chat.model", "gpt-x"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := run(t, "--config-dir", dir, "config", "get", "chat.model")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "gpt-x" {
		t.Errorf("chat.model = %q", out)
	}

	if _, err := run(t, "--config-dir", dir, "config", "set", "polish.api_key", "sk-1234567890"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err = run(t, "--config-dir", dir, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if strings.Contains(out, "sk-1234567890") || !strings.Contains(out, "sk-1...7890") {
		t.Errorf("api key not masked:\n%s", out)
	}

	if _, err := run(t, "--config-dir", dir, "config", "set", "no.such.key", "x"); err == nil {
		t.Error("unknown key should fail")
	}
	if _, err := run(t, "--config-dir", dir, "config", "set", "chat.waiting_timeout", "-1"); err == nil {
		t.Error("negative timeout should fail")
	}
}

func TestSessionsCommands(t *testing.T) {
	srv, dir := startMock(t)

	out, err := run(t, "--config-dir", dir, "sessions", "new", "Hello", "world")
	if err != nil {
		t.Fatalf("sessions new: %v", err)
	}
	if !strings.Contains(out, "Hello world") {
		t.Errorf("new output = %q", out)
	}
	sessions := srv.State().Sessions()
	if len(sessions) != 1 {
		t.Fatalf("backend sessions = %d", len(sessions))
	}
	id := sessions[0].ID

	out, err = run(t, "--config-dir", dir, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Hello world") {
		t.Errorf("list = %q", out)
	}

	if _, err := run(t, "--config-dir", dir, "sessions", "rename", id, "Renamed"); err != nil {
		t.Fatalf("sessions rename: %v", err)
	}
	out, err = run(t, "--config-dir", dir, "sessions", "--cached")
	if err != nil {
		t.Fatalf("sessions --cached: %v", err)
	}
	if !strings.Contains(out, "Renamed") {
		t.Errorf("cached list = %q", out)
	}

	if _, err := run(t, "--config-dir", dir, "sessions", "rm", id); err != nil {
		t.Fatalf("sessions rm: %v", err)
	}
	out, err = run(t, "--config-dir", dir, "sessions", "--cached")
	if err != nil {
		t.Fatalf("sessions --cached: %v", err)
	}
	if strings.Contains(out, id) {
		t.Errorf("deleted session still cached: %q", out)
	}

	if _, err := run(t, "--config-dir", dir, "sessions", "rm", "ses_missing"); err == nil {
		t.Error("deleting an unknown session should fail")
	}
}

func TestSendStreamsReply(t *testing.T) {
	srv, dir := startMock(t)
	s := srv.State().CreateSession("")

	out, err := run(t, "--config-dir", dir, "send", s.ID, "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, mockserver.ReplyText("hello")) {
		t.Errorf("reply missing from output:\n%s", out)
	}
	if !strings.Contains(out, "echo") {
		t.Errorf("tool line missing from output:\n%s", out)
	}
}

func TestSendJSON(t *testing.T) {
	srv, dir := startMock(t)
	s := srv.State().CreateSession("")

	out, err := run(t, "--config-dir", dir, "send", "--json", s.ID, "hello", "there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	var msgs []model.MessageWithParts
	if err := json.Unmarshal([]byte(out), &msgs); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Info.Role != model.RoleUser || msgs[0].Info.IsProvisional() {
		t.Errorf("first message = %+v", msgs[0].Info)
	}
	if msgs[1].Info.Role != model.RoleAssistant || !msgs[1].Info.IsCompleted() {
		t.Errorf("second message = %+v", msgs[1].Info)
	}
}

func TestSendUnknownSession(t *testing.T) {
	_, dir := startMock(t)
	if _, err := run(t, "--config-dir", dir, "send", "ses_missing", "hello"); err == nil {
		t.Error("sending to an unknown session should fail")
	}
}

func TestLogCommand(t *testing.T) {
	dir := t.TempDir()
	logger, err := log.NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	_ = logger.Append(log.LogEvent{Event: log.EventSessionActivated, SessionID: "s1"})
	_ = logger.Append(log.LogEvent{Event: log.EventSnapshotApplied, SessionID: "s1", Count: 3})
	_ = logger.Close()

	out, err := run(t, "--config-dir", dir, "log", "-n", "1")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if strings.Contains(out, log.EventSessionActivated) {
		t.Errorf("-n 1 printed older entries:\n%s", out)
	}
	if !strings.Contains(out, log.EventSnapshotApplied) || !strings.Contains(out, "count=3") {
		t.Errorf("log output = %q", out)
	}
}

func TestParseModel(t *testing.T) {
	tests := []struct {
		in      string
		want    model.ModelSelection
		wantErr bool
	}{
		{in: "openai/gpt-4o", want: model.ModelSelection{ProviderID: "openai", ModelID: "gpt-4o"}},
		{in: "openrouter/meta/llama", want: model.ModelSelection{ProviderID: "openrouter", ModelID: "meta/llama"}},
		{in: "gpt-4o", wantErr: true},
		{in: "/gpt-4o", wantErr: true},
		{in: "openai/", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseModel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseModel(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil || *got != tt.want {
			t.Errorf("parseModel(%q) = %+v, %v", tt.in, got, err)
		}
	}
}

func TestCleanDryRun(t *testing.T) {
	dir := t.TempDir()
	logger, err := log.NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	_ = logger.Append(log.LogEvent{Time: time.Now().AddDate(0, 0, -90), Event: "old"})
	_ = logger.Append(log.LogEvent{Event: "new"})
	_ = logger.Close()

	out, err := run(t, "--config-dir", dir, "clean", "--dry-run")
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if !strings.Contains(out, "Would remove 1 log entries") {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, "--config-dir", dir, "clean", "--days", "0"); err == nil {
		t.Error("--days 0 should fail")
	}
}
