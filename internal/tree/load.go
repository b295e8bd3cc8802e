package tree

import (
	"fmt"
	"io"
	"os"
	"slices"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/conductor/internal/model"
	conductoryaml "github.com/msageha/conductor/internal/yaml"
)

// LoadFile reads and validates a tree definition file.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewConfigError("tree", fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()
	return Load(f)
}

// Load parses a tree definition. Any structural problem is reported as a
// *model.ConfigError.
func Load(r io.Reader) (*Tree, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewConfigError("tree", fmt.Errorf("read: %w", err))
	}
	if err := conductoryaml.CheckHeader(content, conductoryaml.FileTypeTree); err != nil {
		return nil, model.NewConfigError("tree", err)
	}
	var def Definition
	if err := yamlv3.Unmarshal(content, &def); err != nil {
		return nil, model.NewConfigError("tree", fmt.Errorf("parse yaml: %w", err))
	}
	return New(def)
}

// New validates def and builds the indexed tree.
func New(def Definition) (*Tree, error) {
	errs := &model.ValidationErrors{}
	if len(def.Nodes) == 0 {
		errs.Add("nodes", "tree has no nodes")
		return nil, model.NewConfigError("tree", errs)
	}

	nodes := make(map[string]*Node, len(def.Nodes))
	for id, n := range def.Nodes {
		if n == nil {
			errs.Add(fmt.Sprintf("nodes.%s", id), "empty node definition")
			continue
		}
		cp := *n
		if cp.ID == "" {
			cp.ID = id
		} else if cp.ID != id {
			errs.Add(fmt.Sprintf("nodes.%s.id", id), fmt.Sprintf("id %q does not match key", cp.ID))
		}
		cp.Children = append([]string(nil), n.Children...)
		cp.Rules = append([]model.Rule(nil), n.Rules...)
		cp.Escalation.Cascade = append([]string(nil), n.Escalation.Cascade...)
		nodes[id] = &cp
	}
	ids := sortedKeys(nodes)

	var roots []string
	for _, id := range ids {
		validateNode(id, nodes, errs)
		if nodes[id].Parent == "" {
			roots = append(roots, id)
		}
	}

	switch {
	case len(roots) == 0:
		errs.Add("nodes", "no root node (every node has a parent)")
	case len(roots) > 1:
		errs.Add("nodes", fmt.Sprintf("multiple root nodes: %v", roots))
	case def.Root != "" && def.Root != roots[0]:
		errs.Add("root", fmt.Sprintf("declared root %q but node without parent is %q", def.Root, roots[0]))
	}

	if errs.HasErrors() {
		return nil, model.NewConfigError("tree", errs)
	}

	// With symmetric links and a single root, anything not reachable from
	// the root must sit on a parent cycle.
	reached := make(map[string]bool, len(nodes))
	stack := []string{roots[0]}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		stack = append(stack, nodes[cur].Children...)
	}
	for _, id := range ids {
		if !reached[id] {
			errs.Add(fmt.Sprintf("nodes.%s", id), "not reachable from root (parent cycle)")
		}
	}
	if errs.HasErrors() {
		return nil, model.NewConfigError("tree", errs)
	}

	t := &Tree{
		root:   roots[0],
		nodes:  nodes,
		ids:    ids,
		tokens: make(map[string]map[string]bool, len(nodes)),
	}
	for id, n := range nodes {
		t.tokens[id] = buildTokens(n)
	}
	return t, nil
}

func validateNode(id string, nodes map[string]*Node, errs *model.ValidationErrors) {
	n := nodes[id]
	field := func(suffix string) string { return fmt.Sprintf("nodes.%s.%s", id, suffix) }

	if !model.IsValidTreeScale(n.Scale) {
		errs.Add(field("scale"), fmt.Sprintf("invalid scale %q", n.Scale))
	}

	if n.Parent != "" {
		parent, ok := nodes[n.Parent]
		switch {
		case n.Parent == id:
			errs.Add(field("parent"), "node cannot be its own parent")
		case !ok:
			errs.Add(field("parent"), fmt.Sprintf("references unknown node %q", n.Parent))
		case !slices.Contains(parent.Children, id):
			errs.Add(field("parent"), fmt.Sprintf("parent %q does not list this node as a child", n.Parent))
		}
	}

	seen := make(map[string]bool, len(n.Children))
	for i, childID := range n.Children {
		cf := field(fmt.Sprintf("children[%d]", i))
		if seen[childID] {
			errs.Add(cf, fmt.Sprintf("duplicate child %q", childID))
			continue
		}
		seen[childID] = true
		child, ok := nodes[childID]
		if !ok {
			errs.Add(cf, fmt.Sprintf("references unknown node %q", childID))
			continue
		}
		if child.Parent != id {
			errs.Add(cf, fmt.Sprintf("child %q has parent %q", childID, child.Parent))
		}
	}

	for i, r := range n.Rules {
		if r.Name == "" {
			errs.Add(field(fmt.Sprintf("rules[%d].name", i)), "rule name is required")
		}
		if !model.IsValidRuleAction(r.Action) {
			errs.Add(field(fmt.Sprintf("rules[%d].action", i)), fmt.Sprintf("invalid action %q (want block|escalate)", r.Action))
		}
	}

	if target := n.Escalation.Target; target != "" {
		if _, ok := nodes[target]; !ok {
			errs.Add(field("escalation.target"), fmt.Sprintf("references unknown node %q", target))
		}
	}
	for i, c := range n.Escalation.Cascade {
		if _, ok := nodes[c]; !ok {
			errs.Add(field(fmt.Sprintf("escalation.cascade[%d]", i)), fmt.Sprintf("references unknown node %q", c))
		}
	}
}
