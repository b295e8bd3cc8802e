package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/conductor/internal/report"
)

func TestParseRequestFlags_Intent(t *testing.T) {
	rf := parseRequestFlags([]string{"fix", "the", "--target", "product", "login", "page", "--dry-run", "--format", "json"}, "", true)

	assert.Equal(t, "fix the login page", rf.req.Intent)
	assert.Equal(t, "product", rf.req.TargetNode)
	assert.True(t, rf.req.DryRun)
	assert.Nil(t, rf.req.Direct)
	assert.Equal(t, report.FormatJSON, rf.format)
}

func TestParseRequestFlags_Direct(t *testing.T) {
	rf := parseRequestFlags([]string{"--direct", "web", "bump", "the", "css", "bundle"}, "", false)

	require.NotNil(t, rf.req.Direct)
	assert.Equal(t, "web", rf.req.Direct.Node)
	assert.Equal(t, "bump the css bundle", rf.req.Direct.TaskText)
	assert.Equal(t, report.FormatText, rf.format)
}

func TestParseRequestFlags_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema_version: 1\nfile_type: run_request\nintent: rotate api keys\ntarget_node: platform\n"), 0644))

	rf := parseRequestFlags([]string{"--file", path, "--dry-run"}, "", true)

	assert.Equal(t, "rotate api keys", rf.req.Intent)
	assert.Equal(t, "platform", rf.req.TargetNode)
	assert.True(t, rf.req.DryRun, "--dry-run applies on top of the file")
}
