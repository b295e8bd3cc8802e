package model

import "time"

type AggregateNode struct {
	NodeID    string           `yaml:"node_id" json:"node_id"`
	Status    AggregateStatus  `yaml:"status" json:"status"`
	FiredRule string           `yaml:"fired_rule,omitempty" json:"fired_rule,omitempty"`
	Children  []*AggregateNode `yaml:"children,omitempty" json:"children,omitempty"`
}

type Escalation struct {
	From    string   `yaml:"from" json:"from"`
	To      string   `yaml:"to" json:"to"`
	Reason  string   `yaml:"reason" json:"reason"`
	Cascade []string `yaml:"cascade,omitempty" json:"cascade,omitempty"`
	// Unresolved is set when the last node walked has nowhere further to go.
	Unresolved bool `yaml:"unresolved,omitempty" json:"unresolved,omitempty"`
}

type TaskCounts struct {
	Total    int `yaml:"total" json:"total"`
	Approved int `yaml:"approved" json:"approved"`
	Blocked  int `yaml:"blocked" json:"blocked"`
}

type ExecutionTrace struct {
	SchemaVersion int            `yaml:"schema_version" json:"schema_version"`
	FileType      string         `yaml:"file_type" json:"file_type"`
	RunID         string         `yaml:"run_id" json:"run_id"`
	Intent        string         `yaml:"intent" json:"intent"`
	TargetID      string         `yaml:"target_id" json:"target_id"`
	DryRun        bool           `yaml:"dry_run" json:"dry_run"`
	Mode          string         `yaml:"mode,omitempty" json:"mode,omitempty"`
	Phases        []Phase        `yaml:"phases" json:"phases"`
	Counts        TaskCounts     `yaml:"counts" json:"counts"`
	Results       []LeafResult   `yaml:"results" json:"results"`
	Root          *AggregateNode `yaml:"root,omitempty" json:"root,omitempty"`
	Escalations   []Escalation   `yaml:"escalations,omitempty" json:"escalations,omitempty"`
	Status        RunStatus      `yaml:"status" json:"status"`
	Error         string         `yaml:"error,omitempty" json:"error,omitempty"`
	Duration      time.Duration  `yaml:"duration" json:"duration"`
	Timestamp     string         `yaml:"timestamp" json:"timestamp"`
}
