// Package model defines the data structures for conductor's configuration,
// run requests, tasks, results and execution traces.
package model

import "time"

type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Paths     PathsConfig     `yaml:"paths"`
	Routing   RoutingConfig   `yaml:"routing"`
	Execution ExecutionConfig `yaml:"execution"`
	Watch     WatchConfig     `yaml:"watch"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// PathsConfig holds file locations. Relative paths are resolved against
// the conductor directory.
type PathsConfig struct {
	Tree      string `yaml:"tree"`
	Graph     string `yaml:"graph"`
	TracesDir string `yaml:"traces_dir"`
	AuditLog  string `yaml:"audit_log"`
	Database  string `yaml:"database"`
	Inbox     string `yaml:"inbox"`
}

type RoutingConfig struct {
	TopN int `yaml:"top_n"`
}

type ExecutionConfig struct {
	MaxParallel    int      `yaml:"max_parallel"`
	TaskTimeoutSec int      `yaml:"task_timeout_sec"`
	FailFast       *bool    `yaml:"fail_fast"`
	Command        []string `yaml:"command"` // argv; {{node}} {{intent}} are substituted
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	DefaultTopN           = 5
	DefaultMaxParallel    = 4
	DefaultTaskTimeoutSec = 600
	DefaultDebounceMs     = 200
	DefaultMetricsListen  = "127.0.0.1:9464"
)

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Paths.Tree == "" {
		c.Paths.Tree = "tree.yaml"
	}
	if c.Paths.Graph == "" {
		c.Paths.Graph = "graph.yaml"
	}
	if c.Paths.TracesDir == "" {
		c.Paths.TracesDir = "traces"
	}
	if c.Paths.AuditLog == "" {
		c.Paths.AuditLog = "logs/audit.jsonl"
	}
	if c.Paths.Inbox == "" {
		c.Paths.Inbox = "inbox"
	}
	if c.Routing.TopN <= 0 {
		c.Routing.TopN = DefaultTopN
	}
	if c.Execution.MaxParallel <= 0 {
		c.Execution.MaxParallel = DefaultMaxParallel
	}
	if c.Execution.TaskTimeoutSec <= 0 {
		c.Execution.TaskTimeoutSec = DefaultTaskTimeoutSec
	}
	if c.Execution.FailFast == nil {
		ff := true
		c.Execution.FailFast = &ff
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = DefaultDebounceMs
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return c
}

func (c ExecutionConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSec) * time.Second
}

func (c WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c ExecutionConfig) IsFailFast() bool {
	return c.FailFast == nil || *c.FailFast
}
