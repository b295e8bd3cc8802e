package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	for _, kind := range []IDKind{IDRun, IDEvent} {
		t.Run(string(kind), func(t *testing.T) {
			before := time.Now().Add(-time.Second)
			id, err := NewID(kind)
			if err != nil {
				t.Fatalf("NewID(%s): %v", kind, err)
			}
			if !strings.HasPrefix(id, string(kind)+"_") {
				t.Errorf("id %q lacks prefix %q", id, kind)
			}

			gotKind, ts, err := ParseID(id)
			if err != nil {
				t.Fatalf("ParseID(%q): %v", id, err)
			}
			if gotKind != kind {
				t.Errorf("kind = %q, want %q", gotKind, kind)
			}
			if ts.Before(before.Truncate(time.Second)) || ts.After(time.Now()) {
				t.Errorf("timestamp %v out of range", ts)
			}
		})
	}
}

func TestNewID_UnknownKind(t *testing.T) {
	if _, err := NewID("task"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := NewID(IDRun)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestParseID_Invalid(t *testing.T) {
	for _, id := range []string{
		"",
		"run_123_abcdef01",
		"cmd_1700000000_abcdef01",
		"run_1700000000_ABCDEF01",
		"run_1700000000_abcdef0",
	} {
		if _, _, err := ParseID(id); err == nil {
			t.Errorf("ParseID(%q) succeeded", id)
		}
	}
}
