package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("expected zero logger")
	}
	l.Info("ignored", String("k", "v"))
	if l.With(String("a", "b")).IsZero() {
		t.Fatal("With() should produce a non-zero logger")
	}
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "test"))
	l.Debug("hello", Int64("remaining_ms", 1500), Duration("period", time.Second), Err(errors.New("boom")), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "test" {
		t.Fatalf("comp = %v, want test", m["comp"])
	}
	if m["message"] != "hello" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["remaining_ms"] != float64(1500) {
		t.Fatalf("remaining_ms = %v", m["remaining_ms"])
	}
	if _, ok := m["caller"]; !ok {
		t.Fatal("expected caller field")
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if l.Enabled(LevelDebug) {
		t.Fatal("debug should not be enabled at warn level")
	}
	if !l.Enabled(LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestParseLevelDefault(t *testing.T) {
	t.Parallel()
	if got := parseLevel("nonsense", LevelInfo); got != LevelInfo {
		t.Fatalf("parseLevel fallback = %v", got)
	}
	if got := parseLevel(" warning ", LevelInfo); got != LevelWarn {
		t.Fatalf("parseLevel(warning) = %v", got)
	}
}
