package engine

import (
	"testing"
	"time"
)

func TestMonitorLifecycle(t *testing.T) {
	var m Monitor
	if m.Waiting() {
		t.Fatal("new monitor should be idle")
	}

	start := time.Unix(100, 0)
	seq := m.Begin(start)
	if !m.Waiting() {
		t.Fatal("Begin should enter waiting")
	}
	if !m.Since().Equal(start) {
		t.Errorf("Since = %v, want %v", m.Since(), start)
	}

	if !m.Expired(seq) {
		t.Error("first expiry of current generation should fire")
	}
	if m.Expired(seq) {
		t.Error("expiry should fire once per generation")
	}
	if !m.Waiting() {
		t.Error("expiry must not end the wait")
	}

	if !m.Clear() {
		t.Error("Clear should report it was waiting")
	}
	if m.Clear() {
		t.Error("second Clear should report idle")
	}
	if m.Expired(seq) {
		t.Error("expiry after Clear should not fire")
	}
}

func TestMonitorStaleGeneration(t *testing.T) {
	var m Monitor
	first := m.Begin(time.Now())
	second := m.Begin(time.Now())

	if m.Expired(first) {
		t.Error("timer of an older generation should be ignored")
	}
	if m.ClearIf(first) {
		t.Error("ClearIf with an older generation should not clear")
	}
	if !m.Waiting() {
		t.Error("monitor should still be waiting")
	}
	if !m.ClearIf(second) {
		t.Error("ClearIf with the current generation should clear")
	}
}
