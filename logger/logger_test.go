package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	l := NewLogger(Config{})
	if l.level != DEBUG {
		t.Errorf("Expected default level to be DEBUG, got %v", l.level)
	}
	if len(l.outputs) != 1 {
		t.Errorf("Expected 1 default output, got %d", len(l.outputs))
	}
	if l.callDepth != 2 {
		t.Errorf("Expected default call depth to be 2, got %d", l.callDepth)
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{
		Outputs: []LogOutput{{
			Writer:    &buf,
			Formatter: &TextFormatter{TimeFormat: time.RFC3339},
		}},
	})

	l.Info("task finished", map[string]interface{}{"task": "scan-0"})

	output := buf.String()
	if !strings.Contains(output, "task finished") {
		t.Errorf("Expected output to contain the message, got '%s'", output)
	}
	if !strings.Contains(output, "task=scan-0") {
		t.Errorf("Expected output to contain the field, got '%s'", output)
	}
	if !strings.Contains(output, "[INFO]") {
		t.Errorf("Expected output to contain the level, got '%s'", output)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{
		Outputs: []LogOutput{{
			Writer:    &buf,
			Formatter: &JSONFormatter{TimeFormat: time.RFC3339},
		}},
	})

	l.Warn("slow yield", map[string]interface{}{"step": float64(3)})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	if entry["message"] != "slow yield" {
		t.Errorf("Expected message 'slow yield', got '%v'", entry["message"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("Expected level WARN, got '%v'", entry["level"])
	}
	if fields, ok := entry["fields"].(map[string]interface{}); !ok || fields["step"] != float64(3) {
		t.Errorf("Expected fields to carry step=3, got %v", entry["fields"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{
		Level: WARN,
		Outputs: []LogOutput{{
			Writer:    &buf,
			Formatter: &TextFormatter{},
		}},
	})

	l.Debug("hidden", nil)
	l.Info("hidden too", nil)
	if buf.Len() != 0 {
		t.Errorf("Expected no output below the level, got '%s'", buf.String())
	}
	l.Error("visible", nil)
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected ERROR to pass the filter, got '%s'", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{
		Outputs: []LogOutput{{
			Writer:    &buf,
			Formatter: &TextFormatter{},
		}},
	})

	scoped := l.WithContext(map[string]interface{}{"session": "s-1"})
	scoped.Info("request accepted", map[string]interface{}{"command": "begin"})

	output := buf.String()
	if !strings.Contains(output, "session=s-1") {
		t.Errorf("Expected context field in output, got '%s'", output)
	}
	if !strings.Contains(output, "command=begin") {
		t.Errorf("Expected call field in output, got '%s'", output)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	// must not panic or write anywhere
	l.Info("nothing", nil)
}
