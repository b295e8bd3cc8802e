package graph

import (
	"fmt"
	"io"
	"os"
	"sort"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/conductor/internal/model"
	conductoryaml "github.com/msageha/conductor/internal/yaml"
)

// LoadFile reads a graph definition. A missing file is reported with an
// error wrapping os.ErrNotExist so callers can treat absence as optional.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Graph, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewConfigError("graph", fmt.Errorf("read: %w", err))
	}
	if err := conductoryaml.CheckHeader(content, conductoryaml.FileTypeGraph); err != nil {
		return nil, model.NewConfigError("graph", err)
	}
	var def Definition
	if err := yamlv3.Unmarshal(content, &def); err != nil {
		return nil, model.NewConfigError("graph", fmt.Errorf("parse yaml: %w", err))
	}
	return New(def)
}

// New validates def and builds the graph with its reverse index.
func New(def Definition) (*Graph, error) {
	errs := &model.ValidationErrors{}
	g := &Graph{
		components: make(map[string]*Component, len(def.Components)),
		reverse:    make(map[string]map[string]bool),
		tiers:      make(map[int]TierInfo, len(def.Tiers)),
		byOwner:    make(map[string][]string),
	}
	for t, info := range def.Tiers {
		g.tiers[t] = info
	}

	for name, c := range def.Components {
		if c == nil {
			errs.Add(fmt.Sprintf("components.%s", name), "empty component definition")
			continue
		}
		cp := *c
		cp.Name = name
		cp.Deps = append([]string(nil), c.Deps...)
		if cp.Tier < 0 {
			errs.Add(fmt.Sprintf("components.%s.tier", name), fmt.Sprintf("tier must be >= 0, got %d", cp.Tier))
		}
		g.components[name] = &cp
		g.names = append(g.names, name)
	}

	for _, name := range g.names {
		seen := make(map[string]bool)
		for i, dep := range g.components[name].Deps {
			field := fmt.Sprintf("components.%s.deps[%d]", name, i)
			switch {
			case dep == name:
				errs.Add(field, "self-reference is not allowed")
			case seen[dep]:
				errs.Add(field, fmt.Sprintf("duplicate dependency %q", dep))
			case g.components[dep] == nil:
				errs.Add(field, fmt.Sprintf("references unknown component %q", dep))
			default:
				if g.reverse[dep] == nil {
					g.reverse[dep] = make(map[string]bool)
				}
				g.reverse[dep][name] = true
			}
			seen[dep] = true
		}
	}
	if errs.HasErrors() {
		sort.Slice(errs.Errors, func(i, j int) bool { return errs.Errors[i].FieldPath < errs.Errors[j].FieldPath })
		return nil, model.NewConfigError("graph", errs)
	}

	g.sortBuildOrder(g.names)
	for _, name := range g.names {
		c := g.components[name]
		if c.Tier > g.maxTier {
			g.maxTier = c.Tier
		}
		if c.OwningNode != "" {
			g.byOwner[c.OwningNode] = append(g.byOwner[c.OwningNode], name)
		}
	}
	return g, nil
}
