package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, "": Info, "WARNING": Warn, " error ": Error}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestTextLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf).With(Subsystem("agc"))
	l.Info("hidden")
	l.Warn("visible", F("step", 3), F("gain_db", 12.5))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info entry should be filtered: %q", out)
	}
	for _, want := range []string{"[WARN] visible", "subsystem=agc", "step=3", "gain_db=12.50"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestJSONLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	New(Debug, JSON, &buf).Info("gain changed", F("to_step", 7))

	line := buf.String()
	idx := strings.Index(line, "{")
	if idx < 0 {
		t.Fatalf("no json payload in %q", line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line[idx:]), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["msg"] != "gain changed" || payload["level"] != "INFO" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload["to_step"] != float64(7) {
		t.Fatalf("expected to_step=7, got %#v", payload["to_step"])
	}
}
