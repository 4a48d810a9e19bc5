package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Debug("hidden")
	log.Info("Progress: 1/2", "video", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "Progress: 1/2" || rec["video"] != "abc" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNew_ConsoleDefault(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Writer: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Warn("Skipping x as it already exists.")
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, `msg="Skipping x as it already exists."`) {
		t.Fatalf("unexpected console output %q", out)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
}
