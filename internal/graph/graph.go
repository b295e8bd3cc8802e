// Package graph models the tiered component dependency graph and answers
// blast-radius and build-order queries over it.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/msageha/conductor/internal/textutil"
)

var ErrUnknownComponent = errors.New("unknown component")

type Component struct {
	Name        string   `yaml:"-" json:"name"`
	Tier        int      `yaml:"tier" json:"tier"`
	Path        string   `yaml:"path" json:"path,omitempty"`
	Deps        []string `yaml:"deps" json:"deps,omitempty"`
	OwningNode  string   `yaml:"owning_node" json:"owning_node,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
}

type TierInfo struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Definition is the on-disk shape of a graph file.
type Definition struct {
	SchemaVersion int                   `yaml:"schema_version"`
	FileType      string                `yaml:"file_type"`
	Components    map[string]*Component `yaml:"components"`
	Tiers         map[int]TierInfo      `yaml:"tiers"`
}

// Graph is immutable after construction.
type Graph struct {
	components map[string]*Component
	// reverse[c] holds every component that lists c in its Deps.
	reverse map[string]map[string]bool
	tiers   map[int]TierInfo
	names   []string
	maxTier int
	byOwner map[string][]string
}

func (g *Graph) Len() int {
	return len(g.components)
}

// Names returns every component name in build order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

func (g *Graph) Has(name string) bool {
	_, ok := g.components[name]
	return ok
}

func (g *Graph) Component(name string) (Component, error) {
	c, ok := g.components[name]
	if !ok {
		return Component{}, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	cp := *c
	cp.Deps = append([]string(nil), c.Deps...)
	return cp, nil
}

func (g *Graph) MaxTier() int {
	return g.maxTier
}

func (g *Graph) Tier(t int) (TierInfo, bool) {
	info, ok := g.tiers[t]
	return info, ok
}

// ComponentsOwnedBy returns the components whose owning node is nodeID, in build order.
func (g *Graph) ComponentsOwnedBy(nodeID string) []string {
	return append([]string(nil), g.byOwner[nodeID]...)
}

// ComponentsInTier returns the components of tier t sorted by name.
func (g *Graph) ComponentsInTier(t int) []string {
	var out []string
	for _, name := range g.names {
		if g.components[name].Tier == t {
			out = append(out, name)
		}
	}
	return out
}

// DirectDependents returns the components that list name as a dependency.
func (g *Graph) DirectDependents(name string) []string {
	return sortedSet(g.reverse[name])
}

// Dependents returns the transitive closure of components depending on
// name, excluding name itself, sorted by name.
func (g *Graph) Dependents(name string) []string {
	if !g.Has(name) {
		return nil
	}
	visited := map[string]bool{name: true}
	queue := []string{name}
	found := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range g.reverse[cur] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			found[dep] = true
			queue = append(queue, dep)
		}
	}
	return sortedSet(found)
}

// BuildOrder keeps the known names, drops duplicates and sorts by
// (tier, name).
func (g *Graph) BuildOrder(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if seen[n] || !g.Has(n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	g.sortBuildOrder(out)
	return out
}

func (g *Graph) sortBuildOrder(names []string) {
	sort.Slice(names, func(i, j int) bool {
		ti, tj := g.components[names[i]].Tier, g.components[names[j]].Tier
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})
}

// TierRebuildScope returns every tier from tier to MaxTier inclusive.
func (g *Graph) TierRebuildScope(tier int) []int {
	if tier < 0 {
		tier = 0
	}
	var out []int
	for t := tier; t <= g.maxTier; t++ {
		out = append(out, t)
	}
	return out
}

// RebuildScope returns the components of every tier from the lowest tier
// among changed up to MaxTier, in build order. Unknown names are ignored.
func (g *Graph) RebuildScope(changed []string) []string {
	lowest := -1
	for _, name := range changed {
		if c, ok := g.components[name]; ok && (lowest < 0 || c.Tier < lowest) {
			lowest = c.Tier
		}
	}
	if lowest < 0 {
		return nil
	}
	var out []string
	for _, t := range g.TierRebuildScope(lowest) {
		out = append(out, g.ComponentsInTier(t)...)
	}
	return g.BuildOrder(out)
}

// MatchComponents returns the graph components named in text, in build
// order. Only names present in the graph are returned.
func (g *Graph) MatchComponents(text string) []string {
	words := make(map[string]bool)
	for _, w := range textutil.Words(text) {
		words[w] = true
	}
	for _, w := range textutil.Tokenize(text) {
		words[w] = true
	}
	var out []string
	for _, name := range g.names {
		if words[strings.ToLower(name)] {
			out = append(out, name)
		}
	}
	return out
}

// CheckInverse verifies that the reverse index is exactly the inverse of
// the forward dependency edges.
func (g *Graph) CheckInverse() error {
	forward := 0
	for name, c := range g.components {
		for _, dep := range c.Deps {
			forward++
			if !g.reverse[dep][name] {
				return fmt.Errorf("edge %s → %s missing from reverse index", name, dep)
			}
		}
	}
	reverse := 0
	for dep, users := range g.reverse {
		for user := range users {
			reverse++
			c, ok := g.components[user]
			if !ok || !containsDep(c.Deps, dep) {
				return fmt.Errorf("reverse entry %s ← %s has no forward edge", dep, user)
			}
		}
	}
	if forward != reverse {
		return fmt.Errorf("edge count mismatch: forward=%d reverse=%d", forward, reverse)
	}
	return nil
}

func containsDep(deps []string, name string) bool {
	for _, d := range deps {
		if d == name {
			return true
		}
	}
	return false
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
