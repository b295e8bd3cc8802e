package decompose

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/router"
	"github.com/msageha/conductor/internal/testutil"
	"github.com/msageha/conductor/internal/tree"
)

func fixtures(t *testing.T) (*tree.Tree, *graph.Graph) {
	t.Helper()
	tr, err := tree.Load(strings.NewReader(testutil.TreeYAML))
	require.NoError(t, err)
	g, err := graph.Load(strings.NewReader(testutil.GraphYAML))
	require.NoError(t, err)
	return tr, g
}

func nodeIDs(tasks []model.LeafTask) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.NodeID
	}
	return ids
}

func TestDecompose_KeywordDepartmentExpands(t *testing.T) {
	tr, _ := fixtures(t)
	intent := "update the product engineering flows"

	tasks, mode := Decompose(tr, router.Route(intent, tr), intent, nil, Options{})
	assert.Equal(t, ModeKeyword, mode)
	assert.Equal(t, []string{"api", "mobile", "web"}, nodeIDs(tasks))

	api := tasks[0]
	assert.Equal(t, []string{"cto", "product", "api"}, api.Lineage)
	assert.Equal(t, intent, api.Intent)
	assert.Equal(t, model.ScaleCaptain, api.Scale)
	assert.Equal(t, -1, api.Tier)
	assert.Len(t, api.Rules, 4)
}

func TestDecompose_ExecutiveSkipped(t *testing.T) {
	tr, _ := fixtures(t)
	intent := "chief technology office review"
	matches := router.Route(intent, tr)
	require.Len(t, matches, 1)
	assert.Equal(t, "cto", matches[0].NodeID)

	tasks, _ := Decompose(tr, matches, intent, nil, Options{})
	assert.Empty(t, tasks)
}

func TestDecompose_DeduplicatesLeaves(t *testing.T) {
	tr, _ := fixtures(t)
	matches := []router.Match{{NodeID: "product", Score: 2}, {NodeID: "web", Score: 1.5}, {NodeID: "ghost", Score: 1}}

	tasks, _ := Decompose(tr, matches, "x", nil, Options{})
	assert.Equal(t, []string{"api", "mobile", "web"}, nodeIDs(tasks))
}

func TestDecompose_GraphMode(t *testing.T) {
	tr, g := fixtures(t)
	intent := "bump core version"

	p := BuildPlan(tr, router.Route(intent, tr), intent, g, Options{})
	assert.Equal(t, ModeGraph, p.Mode)
	assert.Equal(t, []string{"core"}, p.Components)
	require.NotNil(t, p.Blast)
	assert.Equal(t, []string{"api", "auth", "mobile", "storage", "web"}, p.Seeds)
	assert.Equal(t, []string{"api", "auth", "mobile", "storage", "web"}, nodeIDs(p.Tasks))

	tiers := make(map[string]int)
	for _, task := range p.Tasks {
		tiers[task.NodeID] = task.Tier
	}
	assert.Equal(t, map[string]int{"api": 2, "auth": 1, "mobile": 3, "storage": 0, "web": 3}, tiers)
}

func TestDecompose_NoGraphFallsBackToKeywords(t *testing.T) {
	tr, _ := fixtures(t)
	intent := "bump core version"

	tasks, mode := Decompose(tr, router.Route(intent, tr), intent, nil, Options{})
	assert.Equal(t, ModeKeyword, mode)
	assert.Equal(t, []string{"auth", "storage"}, nodeIDs(tasks))
}

func TestDecompose_TargetRestriction(t *testing.T) {
	tr, g := fixtures(t)
	intent := "bump core version"

	tasks, _ := Decompose(tr, nil, intent, g, Options{Target: "product"})
	assert.Equal(t, []string{"api", "mobile", "web"}, nodeIDs(tasks))
}

func TestDecompose_Deterministic(t *testing.T) {
	tr, g := fixtures(t)
	intent := "fix api-gateway timeouts"
	first, _ := Decompose(tr, router.Route(intent, tr), intent, g, Options{})
	for i := 0; i < 3; i++ {
		again, _ := Decompose(tr, router.Route(intent, tr), intent, g, Options{})
		assert.Equal(t, first, again)
	}
}

func TestTopMatches(t *testing.T) {
	matches := []router.Match{
		{NodeID: "a", Score: 3}, {NodeID: "b", Score: 2}, {NodeID: "c", Score: 2},
		{NodeID: "d", Score: 2}, {NodeID: "e", Score: 1},
	}
	assert.Len(t, TopMatches(matches, 1), 1)
	assert.Len(t, TopMatches(matches, 2), 4)
	assert.Len(t, TopMatches(matches, 4), 4)
	assert.Len(t, TopMatches(matches, 10), 5)
	assert.Len(t, TopMatches(matches, 0), 5)
}

func TestNewTask_Snapshot(t *testing.T) {
	tr, g := fixtures(t)
	task, err := NewTask(tr, "auth", "rotate keys", g)
	require.NoError(t, err)

	task.OwnedFiles[0] = "mutated"
	task.Escalation.Target = "mutated"

	n, err := tr.Lookup("auth")
	require.NoError(t, err)
	assert.Equal(t, "src/auth/login.go", n.Metadata.OwnedFiles[0])
	assert.Equal(t, "platform", n.Escalation.Target)
	assert.Equal(t, []string{"auth-core"}, task.Components)
}

func TestDirect(t *testing.T) {
	tr, g := fixtures(t)

	task, err := Direct(tr, "api", "add pagination", g)
	require.NoError(t, err)
	assert.Equal(t, "api", task.NodeID)
	assert.Equal(t, "add pagination", task.Intent)
	assert.Equal(t, 2, task.Tier)

	_, err = Direct(tr, "ghost", "x", g)
	assert.True(t, errors.Is(err, tree.ErrNodeNotFound))
}
