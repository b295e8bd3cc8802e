package graph

import (
	"fmt"
	"strings"
)

// Check reports structural problems that load does not reject: dependency
// cycles and deps sitting in a higher tier than their dependent.
func (g *Graph) Check() []string {
	var diags []string
	for _, name := range g.names {
		c := g.components[name]
		for _, dep := range c.Deps {
			if d := g.components[dep]; d != nil && d.Tier > c.Tier {
				diags = append(diags, fmt.Sprintf("tier violation: %s (tier %d) depends on %s (tier %d)",
					name, c.Tier, dep, d.Tier))
			}
		}
	}
	if _, err := g.TopologicalOrder(); err != nil {
		diags = append(diags, err.Error())
	}
	return diags
}

// NodeSet is satisfied by *tree.Tree.
type NodeSet interface {
	Has(id string) bool
}

// CheckOwners reports components whose owning node is not in nodes.
// Components without an owner are not reported.
func (g *Graph) CheckOwners(nodes NodeSet) []string {
	var diags []string
	for _, name := range g.names {
		owner := g.components[name].OwningNode
		if owner != "" && !nodes.Has(owner) {
			diags = append(diags, fmt.Sprintf("unknown owner: %s is owned by %q, which is not in the tree", name, owner))
		}
	}
	return diags
}

// TopologicalOrder returns the components with every dependency before its
// dependents, using Kahn's algorithm. On a cycle it returns an error naming
// one cycle path.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if len(g.names) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.names))
	for _, n := range g.names {
		inDegree[n] = len(g.components[n].Deps)
	}

	var queue []string
	for _, n := range g.names {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	sorted := make([]string, 0, len(g.names))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dependent := range g.DirectDependents(node) {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) == len(g.names) {
		return sorted, nil
	}
	return nil, fmt.Errorf("circular dependency detected: %s", strings.Join(g.findCyclePath(inDegree), " -> "))
}

// findCyclePath walks deps depth-first from the nodes Kahn could not drain.
func (g *Graph) findCyclePath(inDegree map[string]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)
	var cyclePath []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range g.components[node].Deps {
			if color[dep] == gray {
				cyclePath = []string{dep}
				for current := node; current != dep; current = parent[current] {
					cyclePath = append(cyclePath, current)
				}
				cyclePath = append(cyclePath, dep)
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range g.names {
		if inDegree[n] > 0 && color[n] == white {
			if dfs(n) {
				return cyclePath
			}
		}
	}
	return []string{"(cycle detected)"}
}
