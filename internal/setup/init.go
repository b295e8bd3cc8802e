// Package setup handles conductor project initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/conductor/internal/model"
	conductoryaml "github.com/msageha/conductor/internal/yaml"
	"github.com/msageha/conductor/templates"
)

// DirName is the per-project directory holding config, definitions and
// run artifacts.
const DirName = ".conductor"

var dirs = []string{
	"inbox",
	"traces",
	"logs",
	"state",
	"locks",
	"quarantine",
	"processed",
	"examples",
}

// Run creates .conductor/ in projectDir with a sample config, tree and
// graph. projectName defaults to the directory's base name.
func Run(projectDir, projectName string) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	base := filepath.Join(absDir, DirName)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	for name, dst := range map[string]string{
		"tree.yaml":    "tree.yaml",
		"graph.yaml":   "graph.yaml",
		"request.yaml": filepath.Join("examples", "request.yaml"),
	} {
		if err := copyTemplateFile(name, filepath.Join(base, dst)); err != nil {
			return "", err
		}
	}

	cfg, err := generateConfig(absDir, projectName)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := conductoryaml.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return "", fmt.Errorf("write config.yaml: %w", err)
	}
	return base, nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func generateConfig(projectDir, projectName string) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	return &cfg, nil
}

// Find searches for .conductor/ in dir and its ancestors. It returns ""
// when none exists.
func Find(dir string) string {
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadConfig reads base/config.yaml and applies defaults. A missing file
// yields the defaults.
func LoadConfig(base string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(base, "config.yaml"))
	if os.IsNotExist(err) {
		return model.Config{}.WithDefaults(), nil
	}
	if err != nil {
		return model.Config{}, model.NewConfigError("config", fmt.Errorf("read config.yaml: %w", err))
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, model.NewConfigError("config", fmt.Errorf("parse config.yaml: %w", err))
	}
	return cfg.WithDefaults(), nil
}

// Resolve makes p absolute relative to base. Empty stays empty.
func Resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
