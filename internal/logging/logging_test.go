package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestGoaLoggerWritesPairs(t *testing.T) {
	var buf bytes.Buffer
	l := NewGoaLogger(zerolog.New(&buf))

	if err := l.Log("method", "GET", "status", 200, "dangling"); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v", entry["method"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v", entry["status"])
	}
	if entry["dangling"] != "(MISSING)" {
		t.Errorf("dangling = %v", entry["dangling"])
	}
}

func TestSetupFallsBackToInfo(t *testing.T) {
	Setup("not-a-level", false)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("global level = %v, want info", zerolog.GlobalLevel())
	}
	Setup("debug", false)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("global level = %v, want debug", zerolog.GlobalLevel())
	}
}
