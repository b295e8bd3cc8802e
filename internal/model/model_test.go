package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshal_WithDefaults(t *testing.T) {
	input := `
project:
  name: acme
paths:
  tree: org/tree.yaml
execution:
  max_parallel: 8
  fail_fast: false
  command: ["sh", "-c", "echo {{node}}"]
logging:
  level: debug
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(input), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg = cfg.WithDefaults()

	if cfg.Paths.Tree != "org/tree.yaml" {
		t.Errorf("tree path = %q", cfg.Paths.Tree)
	}
	if cfg.Paths.Graph != "graph.yaml" {
		t.Errorf("graph path default = %q", cfg.Paths.Graph)
	}
	if cfg.Execution.MaxParallel != 8 {
		t.Errorf("max_parallel = %d", cfg.Execution.MaxParallel)
	}
	if cfg.Execution.IsFailFast() {
		t.Error("fail_fast should stay false when explicitly disabled")
	}
	if cfg.Execution.TaskTimeout() != DefaultTaskTimeoutSec*time.Second {
		t.Errorf("task timeout = %v", cfg.Execution.TaskTimeout())
	}
	if cfg.Routing.TopN != DefaultTopN {
		t.Errorf("top_n = %d", cfg.Routing.TopN)
	}
	if len(cfg.Execution.Command) != 3 {
		t.Errorf("command = %v", cfg.Execution.Command)
	}
}

func TestConfigWithDefaults_FailFastDefaultsTrue(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if !cfg.Execution.IsFailFast() {
		t.Error("fail_fast should default to true")
	}
}

func TestExecutionTraceRoundTrip(t *testing.T) {
	trace := ExecutionTrace{
		SchemaVersion: 1,
		FileType:      "trace",
		RunID:         "run_1771722000_a3f2b7c1",
		Intent:        "fix bug in auth",
		Phases:        []Phase{PhaseIntake, PhaseTriage},
		Results: []LeafResult{{
			NodeID:   "auth",
			Status:   LeafFailed,
			Risk:     RiskAssessment{Score: 3, Level: ApprovalCaptain, Approved: true},
			Duration: 1500 * time.Millisecond,
		}},
		Root:     &AggregateNode{NodeID: "root", Status: AggregateFailed},
		Status:   RunFailed,
		Duration: 2 * time.Second,
	}
	data, err := yaml.Marshal(trace)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ExecutionTrace
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Results[0].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", got.Results[0].Duration)
	}
	if got.Root == nil || got.Root.Status != AggregateFailed {
		t.Errorf("root = %+v", got.Root)
	}
}

func TestConfigError_UnwrapsValidationErrors(t *testing.T) {
	ve := &ValidationErrors{}
	ve.Add("nodes.a.parent", "references unknown node \"x\"")
	err := NewConfigError("tree", ve)

	var target *ValidationErrors
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to find ValidationErrors")
	}
	out := err.FormatStderr()
	if !strings.Contains(out, "invalid tree definition") || !strings.Contains(out, "nodes.a.parent") {
		t.Errorf("unexpected stderr format: %q", out)
	}
}
