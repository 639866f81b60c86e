package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLineFormatAndLevel(t *testing.T) {
	defer SetLevel(GetLevel())

	var buf bytes.Buffer
	log := New(&buf)

	SetLevel("info")
	log.Debug("hidden")
	log.With("call_id", "A").Info("[Session] Answered", "hold", false)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "[INFO] [Session] Answered call_id=A hold=false\n") {
		t.Errorf("unexpected line %q", out)
	}
	if GetLevel() != "info" {
		t.Errorf("GetLevel() = %q", GetLevel())
	}
}

func TestWithGroup(t *testing.T) {
	defer SetLevel(GetLevel())
	SetLevel("debug")

	var buf bytes.Buffer
	New(&buf).WithGroup("rpc").Debug("call", "method", "setup")
	if !strings.Contains(buf.String(), "rpc.method=setup") {
		t.Errorf("group prefix missing: %q", buf.String())
	}
}
