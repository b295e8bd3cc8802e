package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"fix", "bug", "in", "modulex"}, Tokenize("Fix bug in moduleX"))
	assert.Equal(t, []string{"src", "auth", "login", "go"}, Tokenize("src/auth/login.go"))
	assert.Equal(t, []string{"module_x", "core"}, Tokenize("module_x, core!"))
	assert.Empty(t, Tokenize("  ,.;  "))
}

func TestWordSet(t *testing.T) {
	set := WordSet("deploy deploy the API")
	assert.Len(t, set, 3)
	assert.True(t, set["api"])
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"bump", "auth-core", "now"}, Words("Bump (auth-core) now."))
	assert.Equal(t, []string{"src/app.go"}, Words("'src/app.go'"))
}
