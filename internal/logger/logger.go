// Package logger writes one JSON object per line: ts, level, msg and the
// caller's fields.
package logger

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return levelNames[l]
}

var (
	mu        sync.Mutex
	out       io.Writer = io.Discard
	threshold           = LevelInfo
	clock               = func() time.Time { return time.Now().UTC() }
)

// Init sends log lines to <baseDir>/log/app.log. A baseDir of "-" logs to
// stdout, which is what containers want.
func Init(baseDir string) error {
	if baseDir == "-" {
		SetOutput(os.Stdout)
		return nil
	}
	logDir := filepath.Join(baseDir, "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "app.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	SetOutput(f)
	return nil
}

func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// SetDebug toggles debug lines on top of the info threshold.
func SetDebug(enabled bool) {
	if enabled {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

func SetLevel(l Level) {
	mu.Lock()
	threshold = l
	mu.Unlock()
}

func Debug(msg string, fields map[string]any) { write(LevelDebug, msg, fields) }
func Info(msg string, fields map[string]any)  { write(LevelInfo, msg, fields) }
func Warn(msg string, fields map[string]any)  { write(LevelWarn, msg, fields) }
func Error(msg string, fields map[string]any) { write(LevelError, msg, fields) }

func write(level Level, msg string, fields map[string]any) {
	mu.Lock()
	defer mu.Unlock()
	if level < threshold {
		return
	}

	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		switch x := v.(type) {
		case error:
			v = x.Error()
		case time.Duration:
			v = x.String()
		}
		entry[k] = v
	}
	ts := clock().Format(time.RFC3339Nano)
	entry["ts"] = ts
	entry["level"] = level.String()
	entry["msg"] = msg

	line, err := json.Marshal(entry)
	if err != nil {
		line, _ = json.Marshal(map[string]any{
			"ts": ts, "level": LevelError.String(), "msg": "log_marshal_failed",
			"event": msg, "error": err.Error(),
		})
	}
	_, _ = out.Write(append(line, '\n'))
}
