package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, "pipeline")
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Infof("dropped")
	l.Warnf("run=%s kept", "run_1")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line should be filtered: %q", out)
	}
	want := "2026-01-02T03:04:05Z WARN pipeline: run=run_1 kept\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestLogger_NilAndNamed(t *testing.T) {
	var l *Logger
	l.Errorf("no panic")
	if l.Named("x") != nil {
		t.Error("Named on nil logger should stay nil")
	}

	var buf bytes.Buffer
	base := New(&buf, LevelDebug, "a")
	base.Named("b").Debugf("hello")
	if !strings.Contains(buf.String(), " b: hello") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
