package tree

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/testutil"
)

func loadFixture(t *testing.T) *Tree {
	t.Helper()
	tr, err := Load(strings.NewReader(testutil.TreeYAML))
	require.NoError(t, err)
	return tr
}

func TestLoad_Fixture(t *testing.T) {
	tr := loadFixture(t)

	assert.Equal(t, "cto", tr.Root())
	assert.Equal(t, 10, tr.Len())

	n, err := tr.Lookup("auth")
	require.NoError(t, err)
	assert.Equal(t, model.ScaleCaptain, n.Scale)
	assert.Equal(t, "platform", n.Parent)
	assert.Equal(t, []string{"auth-core"}, n.Metadata.OwnedResources)
}

func TestLookup_NotFound(t *testing.T) {
	tr := loadFixture(t)
	_, err := tr.Lookup("nope")
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestWalkToLeaves(t *testing.T) {
	tr := loadFixture(t)

	leaves, err := tr.WalkToLeaves("cto")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "storage", "web", "mobile", "api", "triage"}, leaves)

	leaves, err = tr.WalkToLeaves("product")
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "mobile", "api"}, leaves)

	leaves, err = tr.WalkToLeaves("web")
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, leaves)

	_, err = tr.WalkToLeaves("missing")
	assert.Error(t, err)
}

func TestWalkToLeaves_Deterministic(t *testing.T) {
	tr := loadFixture(t)
	first, _ := tr.WalkToLeaves("cto")
	for i := 0; i < 20; i++ {
		again, _ := tr.WalkToLeaves("cto")
		assert.Equal(t, first, again)
	}
}

func TestLineageAndContains(t *testing.T) {
	tr := loadFixture(t)
	assert.Equal(t, []string{"cto", "product", "api"}, tr.Lineage("api"))
	assert.Equal(t, []string{"cto"}, tr.Lineage("cto"))
	assert.True(t, tr.Contains("product", "api"))
	assert.True(t, tr.Contains("api", "api"))
	assert.False(t, tr.Contains("platform", "api"))
}

func TestTokens(t *testing.T) {
	tr := loadFixture(t)
	toks := tr.Tokens("auth")
	for _, want := range []string{"auth", "captain", "auth-core", "core", "src/auth/login.go", "login.go", "login", "credentials"} {
		assert.True(t, toks[want], "expected token %q", want)
	}
	assert.True(t, tr.Tokens("web")["modulex"])
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name: "asymmetric child",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  a: {name: A, scale: executive, children: [b]}
  b: {name: B, scale: captain, parent: c}
  c: {name: C, scale: department, parent: a}
`,
			wantMsg: "child \"b\" has parent \"c\"",
		},
		{
			name: "parent does not list child",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  a: {name: A, scale: executive}
  b: {name: B, scale: captain, parent: a}
`,
			wantMsg: "does not list this node as a child",
		},
		{
			name: "two roots",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  a: {name: A, scale: executive}
  b: {name: B, scale: executive}
`,
			wantMsg: "multiple root nodes",
		},
		{
			name: "unknown escalation target",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  a: {name: A, scale: executive, escalation: {target: ghost}}
`,
			wantMsg: "escalation.target",
		},
		{
			name: "unknown cascade id",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  a: {name: A, scale: executive, escalation: {cascade: [a, ghost]}}
`,
			wantMsg: "escalation.cascade[1]",
		},
		{
			name: "bad rule action",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  a: {name: A, scale: executive, rules: [{name: r, action: warn}]}
`,
			wantMsg: "invalid action",
		},
		{
			name: "bad scale",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  a: {name: A, scale: team}
`,
			wantMsg: "invalid scale",
		},
		{
			name:    "missing header",
			yaml:    "nodes:\n  a: {name: A, scale: executive}\n",
			wantMsg: "schema_version",
		},
		{
			name: "parent cycle off the root",
			yaml: `
schema_version: 1
file_type: tree
nodes:
  r: {name: R, scale: executive}
  x: {name: X, scale: department, parent: y, children: [y]}
  y: {name: Y, scale: department, parent: x, children: [x]}
`,
			wantMsg: "not reachable from root",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			require.Error(t, err)
			var cfgErr *model.ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, "tree", cfgErr.Source)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNew_CopiesDefinition(t *testing.T) {
	def := Definition{Nodes: map[string]*Node{
		"a": {Name: "A", Scale: model.ScaleExecutive, Children: []string{"b"}},
		"b": {Name: "B", Scale: model.ScaleCaptain, Parent: "a"},
	}}
	tr, err := New(def)
	require.NoError(t, err)

	def.Nodes["a"].Children[0] = "mutated"
	leaves, err := tr.WalkToLeaves("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, leaves)
}
