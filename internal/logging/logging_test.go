package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "prod", "info")

	logger.Info().Str("queue", "queue:Dr. Chen:2024-12-13").Msg("assigned")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "assigned" || entry["queue"] != "queue:Dr. Chen:2024-12-13" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "prod", "WARN")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "prod", "chatty")

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")

	out := buf.String()
	if strings.Contains(out, `"message":"debug"`) {
		t.Errorf("expected debug to be filtered, got %q", out)
	}
	if !strings.Contains(out, `"message":"info"`) {
		t.Errorf("expected info line, got %q", out)
	}
}

func TestNew_ConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "dev", "")

	logger.Info().Msg("hello")

	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("expected console output in dev, got JSON %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}
