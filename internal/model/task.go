package model

import "time"

type Rule struct {
	Name      string     `yaml:"name" json:"name"`
	Condition string     `yaml:"condition" json:"condition"`
	Action    RuleAction `yaml:"action" json:"action"`
}

type EscalationPolicy struct {
	Target    string   `yaml:"target" json:"target,omitempty"`
	Threshold int      `yaml:"threshold" json:"threshold,omitempty"`
	Cascade   []string `yaml:"cascade" json:"cascade,omitempty"`
}

// LeafTask is one unit of work at a captain node. The owned-* fields and
// rules are copied at plan time and never alias the tree.
type LeafTask struct {
	NodeID         string           `yaml:"node_id" json:"node_id"`
	NodeName       string           `yaml:"node_name" json:"node_name"`
	Scale          Scale            `yaml:"scale" json:"scale"`
	Intent         string           `yaml:"intent" json:"intent"`
	Lineage        []string         `yaml:"lineage" json:"lineage"`
	OwnedResources []string         `yaml:"owned_resources,omitempty" json:"owned_resources,omitempty"`
	OwnedFiles     []string         `yaml:"owned_files,omitempty" json:"owned_files,omitempty"`
	OwnedFunctions []string         `yaml:"owned_functions,omitempty" json:"owned_functions,omitempty"`
	Rules          []Rule           `yaml:"rules,omitempty" json:"rules,omitempty"`
	Escalation     EscalationPolicy `yaml:"escalation" json:"escalation"`
	Components     []string         `yaml:"components,omitempty" json:"components,omitempty"`
	// Tier is the lowest tier among Components, -1 when none resolved.
	Tier int `yaml:"tier" json:"tier"`
}

type RiskAssessment struct {
	Score    int           `yaml:"score" json:"score"`
	Level    ApprovalLevel `yaml:"level" json:"level"`
	Approved bool          `yaml:"approved" json:"approved"`
	Audit    bool          `yaml:"audit,omitempty" json:"audit,omitempty"`
}

type LeafResult struct {
	NodeID           string         `yaml:"node_id" json:"node_id"`
	Status           LeafStatus     `yaml:"status" json:"status"`
	Payload          string         `yaml:"payload,omitempty" json:"payload,omitempty"`
	Risk             RiskAssessment `yaml:"risk" json:"risk"`
	EscalationTarget string         `yaml:"escalation_target,omitempty" json:"escalation_target,omitempty"`
	Error            string         `yaml:"error,omitempty" json:"error,omitempty"`
	// Skipped marks a task that was never dispatched because an earlier
	// tier failed.
	Skipped  bool          `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}
