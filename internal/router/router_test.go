package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/conductor/internal/testutil"
	"github.com/msageha/conductor/internal/tree"
)

func loadTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr, err := tree.Load(strings.NewReader(testutil.TreeYAML))
	require.NoError(t, err)
	return tr
}

func scoreOf(matches []Match, id string) (float64, int) {
	for i, m := range matches {
		if m.NodeID == id {
			return m.Score, i
		}
	}
	return 0, -1
}

func TestRoute_CaptainOwningResourceOutranksDepartment(t *testing.T) {
	tr := loadTree(t)
	matches := Route("fix bug in moduleX", tr)

	webScore, webPos := scoreOf(matches, "web")
	qaScore, qaPos := scoreOf(matches, "qa")
	require.NotEqual(t, -1, webPos)
	require.NotEqual(t, -1, qaPos)
	assert.Greater(t, webScore, qaScore)
	assert.Less(t, webPos, qaPos)
	assert.Equal(t, 1.5, webScore)
	assert.Equal(t, 1.0, qaScore)
}

func TestRoute_TieBreakByID(t *testing.T) {
	tr := loadTree(t)
	// "captain" appears in every captain's name.
	matches := Route("captain", tr)
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.NodeID
		assert.Equal(t, 1.5, m.Score)
	}
	assert.Equal(t, []string{"api", "auth", "mobile", "storage", "triage", "web"}, ids)
}

func TestRoute_ScoresByOverlap(t *testing.T) {
	tr := loadTree(t)
	matches := Route("Product engineering: update src/auth/login.go", tr)
	require.NotEmpty(t, matches)

	assert.Equal(t, "auth", matches[0].NodeID)
	score, _ := scoreOf(matches, "product")
	assert.Equal(t, 2.0, score)
}

func TestRoute_NoMatch(t *testing.T) {
	tr := loadTree(t)
	assert.Empty(t, Route("reticulate splines", tr))
	assert.Empty(t, Route("   ", tr))
}

func TestRoute_Deterministic(t *testing.T) {
	tr := loadTree(t)
	first := Route("deploy the api-gateway and web-ui", tr)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Route("deploy the api-gateway and web-ui", tr))
	}
}

func TestIntentWords(t *testing.T) {
	words := IntentWords("Touch auth-core, please touch")
	assert.Equal(t, map[string]bool{"touch": true, "auth": true, "core": true, "please": true}, words)
}

func TestRoute_HyphenatedWordCountsItsTokensOnce(t *testing.T) {
	tr := loadTree(t)
	matches := Route("touch auth-core", tr)

	authScore, authPos := scoreOf(matches, "auth")
	storageScore, _ := scoreOf(matches, "storage")
	assert.Equal(t, 0, authPos)
	assert.Equal(t, 2.5, authScore, "auth and core, plus the captain bonus")
	assert.Equal(t, 1.5, storageScore, "storage owns core")
}
