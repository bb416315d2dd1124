package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})
	logger.Debug("ingesting comic", "id", 149)

	out := buf.String()
	if !strings.Contains(out, "ingesting comic") || !strings.Contains(out, "id=149") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{JSON: true})
	logger.Info("scan finished", "mode", "full")

	out := buf.String()
	if !strings.Contains(out, `"msg":"scan finished"`) || !strings.Contains(out, `"mode":"full"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})
	logger.Info("suppressed")
	logger.Warn("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Error("info message emitted below the configured level")
	}
	if !strings.Contains(out, "emitted") {
		t.Error("warn message missing")
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	// Must not panic, must not write anywhere visible.
	logger.Error("discarded")
}
