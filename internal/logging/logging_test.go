package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONHandlerIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "signer", false, false)
	log.Info("hello", "n", 1)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "signer" {
		t.Errorf("component = %v, want \"signer\"", entry["component"])
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want \"hello\"", entry["msg"])
	}
}

func TestNewTextHandlerIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "proxy", true, false)
	log.Info("started")

	out := buf.String()
	if !strings.Contains(out, "component=proxy") {
		t.Errorf("expected a component=proxy attribute, got %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Error("text handler produced JSON-looking output")
	}
}

func TestNewDebugLevelEnablesDebugRecords(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "display", true, false)
	log.Debug("should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected debug records to be suppressed at info level, got %q", buf.String())
	}

	buf.Reset()
	log = New(&buf, "display", true, true)
	log.Debug("should be emitted")
	if buf.Len() == 0 {
		t.Error("expected debug records to be emitted when debug=true")
	}
}
