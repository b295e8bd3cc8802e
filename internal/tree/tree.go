// Package tree loads and indexes the coordination hierarchy.
//
// A Tree is an arena: nodes live in a flat id map and refer to each other
// by id. It is built once and never mutated, so it can be shared by
// concurrent runs without locking.
package tree

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/textutil"
)

var ErrNodeNotFound = errors.New("node not found")

type Metadata struct {
	OwnedResources []string `yaml:"owned_resources"`
	OwnedFiles     []string `yaml:"owned_files"`
	OwnedFunctions []string `yaml:"owned_functions"`
	Tier           *int     `yaml:"tier"`
}

type Node struct {
	ID         string                 `yaml:"id"`
	Name       string                 `yaml:"name"`
	Scale      model.Scale            `yaml:"scale"`
	Parent     string                 `yaml:"parent"`
	Children   []string               `yaml:"children"`
	Rules      []model.Rule           `yaml:"rules"`
	Escalation model.EscalationPolicy `yaml:"escalation"`
	Metadata   Metadata               `yaml:"metadata"`
}

func (n *Node) IsLeaf() bool {
	return n.Scale == model.ScaleCaptain
}

// Definition is the on-disk shape of a tree file.
type Definition struct {
	SchemaVersion int              `yaml:"schema_version"`
	FileType      string           `yaml:"file_type"`
	Root          string           `yaml:"root"`
	Nodes         map[string]*Node `yaml:"nodes"`
}

type Tree struct {
	root   string
	nodes  map[string]*Node
	ids    []string
	tokens map[string]map[string]bool
}

func (t *Tree) Root() string {
	return t.root
}

// IDs returns every node id in ascending order.
func (t *Tree) IDs() []string {
	return append([]string(nil), t.ids...)
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) Lookup(id string) (*Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return n, nil
}

func (t *Tree) Has(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// WalkToLeaves returns the captain-scale nodes under id, depth-first with
// children visited in stored order. A captain id yields itself.
func (t *Tree) WalkToLeaves(id string) ([]string, error) {
	if _, err := t.Lookup(id); err != nil {
		return nil, err
	}
	var leaves []string
	var walk func(string)
	walk = func(cur string) {
		n := t.nodes[cur]
		if n.IsLeaf() {
			leaves = append(leaves, cur)
			return
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(id)
	return leaves, nil
}

// Lineage returns the ids from the root down to id inclusive.
func (t *Tree) Lineage(id string) []string {
	var rev []string
	for cur := id; cur != ""; {
		n, ok := t.nodes[cur]
		if !ok {
			break
		}
		rev = append(rev, cur)
		cur = n.Parent
	}
	out := make([]string, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

// Contains reports whether id is ancestor itself or lies under it.
func (t *Tree) Contains(ancestor, id string) bool {
	for cur := id; cur != ""; {
		if cur == ancestor {
			return true
		}
		n, ok := t.nodes[cur]
		if !ok {
			return false
		}
		cur = n.Parent
	}
	return false
}

// Tokens returns the precomputed routing vocabulary of a node.
// The returned map must not be modified.
func (t *Tree) Tokens(id string) map[string]bool {
	return t.tokens[id]
}

func buildTokens(n *Node) map[string]bool {
	set := make(map[string]bool)
	add := func(s string) {
		for _, tok := range textutil.Tokenize(s) {
			set[tok] = true
		}
	}
	addWhole := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = true
		}
		add(s)
	}

	add(n.Name)
	addWhole(n.ID)
	for _, r := range n.Metadata.OwnedResources {
		addWhole(r)
	}
	for _, f := range n.Metadata.OwnedFiles {
		addWhole(f)
		base := path.Base(f)
		addWhole(base)
		if ext := path.Ext(base); ext != "" {
			addWhole(strings.TrimSuffix(base, ext))
		}
	}
	for _, fn := range n.Metadata.OwnedFunctions {
		addWhole(fn)
	}
	return set
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
