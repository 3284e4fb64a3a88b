package engine

import (
	"os"
	"strings"
	"testing"
)

func TestLogAppendAndRead(t *testing.T) {
	paths := NewPaths(t.TempDir())
	log := NewLog(paths)
	rid := NewRunID()

	events := []Event{
		NewRunStarted(rid),
		NewIterationStarted(rid, 1),
		NewScreenshotCaptured(rid, paths.ScreenshotURL(rid, 1), 1),
	}
	for _, ev := range events {
		if err := log.Append(rid, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := log.Read(rid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(got))
	}
	for i, ev := range events {
		if got[i].Kind != ev.Kind {
			t.Errorf("event %d: expected kind %s, got %s", i, ev.Kind, got[i].Kind)
		}
	}
}

func TestLogAppendCreatesOneLinePerEvent(t *testing.T) {
	paths := NewPaths(t.TempDir())
	log := NewLog(paths)
	rid := NewRunID()

	if err := log.Append(rid, NewRunStarted(rid)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(rid, NewControlPaused()); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := os.ReadFile(paths.EventsPath(rid))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), raw)
	}
	for _, line := range lines {
		if strings.Contains(line, " ") {
			t.Errorf("log line not compact: %q", line)
		}
	}
}

func TestLogAppendEmptyRunID(t *testing.T) {
	log := NewLog(NewPaths(t.TempDir()))
	if err := log.Append("", NewControlPaused()); err == nil {
		t.Error("expected error for empty run id")
	}
}

func TestLogReadMissingRun(t *testing.T) {
	log := NewLog(NewPaths(t.TempDir()))
	if _, err := log.Read("2026-08-25T10-00-00Z_ab12"); err == nil {
		t.Error("expected error for missing log")
	}
}
