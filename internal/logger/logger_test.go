package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestLoggerIncludesStackAndComponentOnError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("test-component", &buf, "json", "")
	log.Error().Stack().Err(errors.New("boom")).Msg("something failed")

	var payload map[string]any
	if err := json.Unmarshal([]byte(lastLine(buf.String())), &payload); err != nil {
		t.Fatalf("invalid json log: %v\n%s", err, buf.String())
	}
	if payload["component"] != "test-component" {
		t.Fatalf("expected component=test-component, got %v", payload["component"])
	}
	if payload["level"] != "error" {
		t.Fatalf("expected level=error, got %v", payload["level"])
	}
	if _, ok := payload["stack"]; !ok {
		t.Fatalf("expected stack field in error log: %s", buf.String())
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("c", &buf, "", "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info event should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn event missing: %s", out)
	}
}

func TestLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("c", &buf, "console", "debug")
	log.Debug().Msg("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("console format should not emit JSON: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("message missing: %s", buf.String())
	}
}
