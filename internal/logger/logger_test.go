package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWriteProducesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	Warn("tour_not_found", map[string]any{"id": "abc", "error": errors.New("boom")})

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	if got["level"] != "warn" || got["msg"] != "tour_not_found" {
		t.Fatalf("unexpected level/msg: %v", got)
	}
	if got["error"] != "boom" {
		t.Fatalf("errors must be logged as strings, got %v", got["error"])
	}
	if _, ok := got["ts"]; !ok {
		t.Fatalf("missing ts field: %v", got)
	}
}

func TestDebugIsGated(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	SetDebug(false)
	Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug line written while debug disabled: %q", buf.String())
	}

	SetDebug(true)
	defer SetDebug(false)
	Debug("visible", nil)
	if !strings.Contains(buf.String(), `"msg":"visible"`) {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}

func TestCallerFieldsAreNotMutated(t *testing.T) {
	SetOutput(&bytes.Buffer{})
	fields := map[string]any{"path": "/api/v1/tours"}
	Info("response", fields)
	if len(fields) != 1 {
		t.Fatalf("caller map was mutated: %v", fields)
	}
}

func TestLevelThresholdAndFieldFormatting(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})
	defer SetLevel(LevelInfo)

	restore := clock
	clock = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	defer func() { clock = restore }()

	SetLevel(LevelWarn)
	Info("skipped", nil)
	Error("kept", map[string]any{"took": 1500 * time.Millisecond})

	want := `{"level":"error","msg":"kept","took":"1.5s","ts":"2025-01-02T03:04:05Z"}` + "\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestLevelString(t *testing.T) {
	for l, want := range map[Level]string{LevelDebug: "debug", LevelError: "error", Level(9): "unknown"} {
		if got := l.String(); got != want {
			t.Fatalf("%d: got %q, want %q", l, got, want)
		}
	}
}
