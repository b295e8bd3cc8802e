package model

// RunRequest is the input to one pipeline run.
type RunRequest struct {
	SchemaVersion int            `yaml:"schema_version,omitempty" json:"schema_version,omitempty"`
	FileType      string         `yaml:"file_type,omitempty" json:"file_type,omitempty"`
	Intent        string         `yaml:"intent" json:"intent"`
	TargetNode    string         `yaml:"target_node,omitempty" json:"target_node,omitempty"`
	Direct        *DirectRequest `yaml:"direct,omitempty" json:"direct,omitempty"`
	DryRun        bool           `yaml:"dry_run" json:"dry_run"`
}

// DirectRequest bypasses routing and decomposition and builds a single
// task at Node.
type DirectRequest struct {
	Node     string `yaml:"node" json:"node"`
	TaskText string `yaml:"task_text" json:"task_text"`
}
