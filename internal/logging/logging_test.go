package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

// captureLogOutputWithInit captures output by reinitializing the logger
// to write to a buffer. This tests the actual InitLogger ReplaceAttr logic.
func captureLogOutputWithInit(level Level, format Format, f func()) string {
	var buf bytes.Buffer
	InitLoggerTo(&buf, level, format)
	f()
	InitLogger(LevelInfo, FormatJSON)
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug level JSON format", LevelDebug, FormatJSON},
		{"Info level JSON format", LevelInfo, FormatJSON},
		{"Warn level JSON format", LevelWarn, FormatJSON},
		{"Error level JSON format", LevelError, FormatJSON},
		{"Info level Text format", LevelInfo, FormatText},
		{"Default level (invalid value)", Level(999), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("Expected logger to be initialized, got nil")
			}
		})
	}
	InitLogger(LevelInfo, FormatJSON)
}

func TestLevelFiltering(t *testing.T) {
	output := captureLogOutputWithInit(LevelWarn, FormatJSON, func() {
		Info("hidden")
		Warn("shown")
	})
	if strings.Contains(output, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("warn message should be logged at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestRunID(t *testing.T) {
	ctx := context.Background()
	if GetRunID(ctx) != "" {
		t.Error("Expected empty run id for bare context")
	}
	ctx = WithRunID(ctx, "run-123")
	if got := GetRunID(ctx); got != "run-123" {
		t.Errorf("GetRunID = %q, want run-123", got)
	}

	output := captureLogOutput(func() {
		InfoContext(ctx, "with run")
	})
	if !strings.Contains(output, `"run_id":"run-123"`) {
		t.Errorf("Expected run id in output: %s", output)
	}
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name  string
		log   func()
		level string
	}{
		{"Debug", func() { Debug("m", "k", "v") }, "DEBUG"},
		{"Info", func() { Info("m", "k", "v") }, "INFO"},
		{"Warn", func() { Warn("m", "k", "v") }, "WARN"},
		{"Error", func() { Error("m", "k", "v") }, "ERROR"},
		{"DebugContext", func() { DebugContext(context.Background(), "m", "k", "v") }, "DEBUG"},
		{"InfoContext", func() { InfoContext(context.Background(), "m", "k", "v") }, "INFO"},
		{"WarnContext", func() { WarnContext(context.Background(), "m", "k", "v") }, "WARN"},
		{"ErrorContext", func() { ErrorContext(context.Background(), "m", "k", "v") }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.log)
			var rec map[string]any
			if err := json.Unmarshal([]byte(output), &rec); err != nil {
				t.Fatalf("output is not JSON: %v: %s", err, output)
			}
			if rec["level"] != tt.level || rec["msg"] != "m" || rec["k"] != "v" {
				t.Errorf("record = %v", rec)
			}
		})
	}
}

func TestBatchDelivered(t *testing.T) {
	output := captureLogOutput(func() {
		BatchDelivered(context.Background(), 3, 2048, "pooled", true)
	})
	for _, want := range []string{`"msg":"batch_delivered"`, `"keys":3`, `"bytes":2048`, `"size":"2.0 KiB"`, `"pooled":true`} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %s in output: %s", want, output)
		}
	}
}

func TestProgress(t *testing.T) {
	output := captureLogOutput(func() {
		Progress(context.Background(), "count", 12345, -1)
	})
	if !strings.Contains(output, `"done":"12,345"`) || strings.Contains(output, "total") {
		t.Errorf("unexpected output: %s", output)
	}

	output = captureLogOutput(func() {
		Progress(context.Background(), "scan", 5, 10)
	})
	if !strings.Contains(output, `"total":"10"`) {
		t.Errorf("Expected total in output: %s", output)
	}
}

func TestReplaceAttrTimestamp(t *testing.T) {
	output := captureLogOutputWithInit(LevelInfo, FormatJSON, func() {
		Info("timestamp test")
	})

	var rec map[string]any
	if err := json.Unmarshal([]byte(output), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	ts, _ := rec["time"].(string)
	if !strings.Contains(ts, "T") || strings.Contains(ts, ".") {
		t.Errorf("Expected RFC3339 timestamp without fractional seconds, got %q", ts)
	}
}

func TestTextFormat(t *testing.T) {
	output := captureLogOutputWithInit(LevelInfo, FormatText, func() {
		Info("test message text", "key", "value")
	})
	if !strings.Contains(output, `msg="test message text"`) || !strings.Contains(output, "key=value") {
		t.Errorf("unexpected text output: %s", output)
	}
}
