package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	if err := os.MkdirAll(inbox, 0755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(inbox, "req.yaml")
	if err := os.WriteFile(src, []byte("intent: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	dst, err := Quarantine(dir, src, "parse yaml: bad")
	if err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("original file should be moved away")
	}
	if !strings.HasPrefix(filepath.Base(dst), "req.yaml.") || !strings.HasSuffix(dst, ".rejected") {
		t.Errorf("unexpected quarantine name %q", dst)
	}
	reason, err := os.ReadFile(dst + ".reason")
	if err != nil {
		t.Fatalf("read reason: %v", err)
	}
	if strings.TrimSpace(string(reason)) != "parse yaml: bad" {
		t.Errorf("reason = %q", reason)
	}
}

func TestQuarantine_MissingFile(t *testing.T) {
	if _, err := Quarantine(t.TempDir(), "/nonexistent/file.yaml", ""); err == nil {
		t.Error("expected error for missing file")
	}
}
