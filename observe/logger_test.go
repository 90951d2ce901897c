package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	logger.Info(context.Background(), "request started",
		Field{Key: "op.class", Value: "chat"},
	)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0]["level"] != "info" {
		t.Errorf("level = %v, want info", entries[0]["level"])
	}
	if entries[0]["msg"] != "request started" {
		t.Errorf("msg = %v", entries[0]["msg"])
	}
	if entries[0]["op.class"] != "chat" {
		t.Errorf("op.class = %v, want chat", entries[0]["op.class"])
	}
	if _, ok := entries[0]["timestamp"]; !ok {
		t.Error("entry missing timestamp")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")
	logger.Critical(ctx, "critical message")

	entries := decodeLines(t, &buf)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (debug and info filtered)", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[2]["level"] != "critical" {
		t.Errorf("levels = %v, %v, %v", entries[0]["level"], entries[1]["level"], entries[2]["level"])
	}
}

func TestLogger_WithOp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	opLogger := logger.WithOp(OpMeta{
		Class:     "image",
		Service:   "image",
		RequestID: "req-123",
		UserID:    "user-1",
	})
	opLogger.Info(context.Background(), "request started")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry["op.class"] != "image" {
		t.Errorf("op.class = %v, want image", entry["op.class"])
	}
	if entry["op.request_id"] != "req-123" {
		t.Errorf("op.request_id = %v, want req-123", entry["op.request_id"])
	}
	if entry["op.user_id"] != "user-1" {
		t.Errorf("op.user_id = %v, want user-1", entry["op.user_id"])
	}

	// The parent logger is unchanged
	logger.Info(context.Background(), "bare")
	entries = decodeLines(t, &buf)
	if _, ok := entries[1]["op.class"]; ok {
		t.Error("parent logger picked up operation context")
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "request received",
		Field{Key: "prompt", Value: "write me a poem about whales"},
		Field{Key: "api_key", Value: "sk-123456"},
		Field{Key: "op.class", Value: "chat"},
	)

	entries := decodeLines(t, &buf)
	entry := entries[0]
	if entry["prompt"] != "[REDACTED]" {
		t.Errorf("prompt = %v, want [REDACTED]", entry["prompt"])
	}
	if entry["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want [REDACTED]", entry["api_key"])
	}
	if entry["op.class"] != "chat" {
		t.Errorf("op.class = %v, want chat (not a redacted key)", entry["op.class"])
	}
	if strings.Contains(buf.String(), "whales") {
		t.Error("prompt content leaked into log output")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"critical", LevelCritical},
		{"bogus", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
