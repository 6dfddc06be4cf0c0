package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	component := Component(logger, "pipeline")
	component.Warn().Str("hash", "0x1").Msg("kept")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line should be JSON: %v", err)
	}
	if entry["component"] != "pipeline" || entry["hash"] != "0x1" {
		t.Fatalf("unexpected fields: %#v", entry)
	}
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{}, &buf)
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatal("debug should be hidden by default")
	}
	logger.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("info should be emitted by default")
	}
}
