package agent

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
)

func sampleTask() model.LeafTask {
	return model.LeafTask{
		NodeID:     "api",
		NodeName:   "API Captain",
		Scale:      model.ScaleCaptain,
		Intent:     "add pagination",
		Lineage:    []string{"cto", "product", "api"},
		OwnedFiles: []string{"src/api/router.go"},
		Components: []string{"api-gateway"},
		Rules:      []model.Rule{{Name: "schema-review", Action: model.RuleActionEscalate}},
		Tier:       2,
	}
}

func TestNewCommandExecutor_Empty(t *testing.T) {
	_, err := NewCommandExecutor(nil, "", nil)
	assert.ErrorIs(t, err, ErrNoCommand)
	_, err = NewCommandExecutor([]string{" "}, "", nil)
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestCommandExecutor_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.LevelDebug, "test")
	e, err := NewCommandExecutor([]string{"sh", "-c", `echo "{{node}}:$CONDUCTOR_LINEAGE:{{files}}"`}, t.TempDir(), logger)
	require.NoError(t, err)

	res := e.Execute(context.Background(), sampleTask(), 5*time.Second)
	assert.Equal(t, model.LeafCompleted, res.Status)
	assert.Equal(t, "api:cto/product/api:src/api/router.go", res.Payload)
	assert.Empty(t, res.Error)
	assert.Positive(t, res.Duration)
	assert.Contains(t, buf.String(), "DEBUG agent_executor: dispatch node=api")
	assert.Contains(t, buf.String(), "INFO agent_executor: task_completed node=api")
}

func TestCommandExecutor_EnvelopeOnStdin(t *testing.T) {
	e, err := NewCommandExecutor([]string{"cat"}, "", nil)
	require.NoError(t, err)

	res := e.Execute(context.Background(), sampleTask(), 5*time.Second)
	require.Equal(t, model.LeafCompleted, res.Status)
	assert.True(t, strings.HasPrefix(res.Payload, "[conductor] node:api scale:captain tier:2"))
	assert.Contains(t, res.Payload, "lineage: cto > product > api")
	assert.Contains(t, res.Payload, "rules: schema-review(escalate)")
	assert.Contains(t, res.Payload, "owned_functions: none")
}

func TestCommandExecutor_Failure(t *testing.T) {
	e, err := NewCommandExecutor([]string{"sh", "-c", "echo broken >&2; exit 3"}, "", nil)
	require.NoError(t, err)

	res := e.Execute(context.Background(), sampleTask(), 5*time.Second)
	assert.Equal(t, model.LeafFailed, res.Status)
	assert.Contains(t, res.Error, "exit status 3")
	assert.Contains(t, res.Error, "broken")
}

func TestCommandExecutor_Timeout(t *testing.T) {
	e, err := NewCommandExecutor([]string{"sleep", "5"}, "", nil)
	require.NoError(t, err)

	start := time.Now()
	res := e.Execute(context.Background(), sampleTask(), 100*time.Millisecond)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, model.LeafFailed, res.Status)
	assert.Contains(t, res.Error, "timed out after 100ms")
}

func TestCommandExecutor_MissingBinary(t *testing.T) {
	e, err := NewCommandExecutor([]string{"/nonexistent/conductor-worker"}, "", nil)
	require.NoError(t, err)

	res := e.Execute(context.Background(), sampleTask(), time.Second)
	assert.Equal(t, model.LeafFailed, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := "ab" + strings.Repeat("é", 5) // é is two bytes
	got := truncate(s, 3)
	assert.True(t, utf8.ValidString(got), "got %q", got)
	assert.Equal(t, "ab... [truncated]", got)

	assert.Equal(t, "abé... [truncated]", truncate(s, 4))
	assert.Equal(t, "short", truncate("short", 10))
}

func TestFilterEnv(t *testing.T) {
	got := filterEnv([]string{"PATH=/bin", "CONDUCTOR_NODE=x", "HOME=/root"}, envPrefix)
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root"}, got)
}

func TestDryRunExecutor(t *testing.T) {
	res := DryRunExecutor{}.Execute(context.Background(), sampleTask(), 0)
	assert.Equal(t, model.LeafCompleted, res.Status)
	assert.Equal(t, DryRunPayload, res.Payload)
	assert.Equal(t, "api", res.NodeID)
}
