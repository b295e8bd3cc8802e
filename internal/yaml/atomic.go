// Package yaml provides atomic YAML file I/O, schema headers and quarantine
// of rejected input files.
package yaml

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

// AtomicWrite encodes v with a two-space indent and replaces path with it.
// Readers see either the previous file or the complete new one.
func AtomicWrite(path string, v any) error {
	var buf bytes.Buffer
	enc := yamlv3.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return replaceFile(path, buf.Bytes())
}

// AtomicWriteRaw writes YAML produced elsewhere, such as an embedded
// template. Content that does not parse is rejected before the file is
// touched.
func AtomicWriteRaw(path string, content []byte) error {
	var v any
	if err := yamlv3.Unmarshal(content, &v); err != nil {
		return fmt.Errorf("yaml validation failed: %w", err)
	}
	return replaceFile(path, content)
}

func replaceFile(path string, content []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable. Failure only weakens durability.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
