// Package decompose expands routed matches or a blast radius into leaf tasks.
package decompose

import (
	"fmt"
	"sort"

	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/router"
	"github.com/msageha/conductor/internal/tree"
)

const DefaultTopN = 5

type Mode string

const (
	ModeGraph   Mode = "graph"
	ModeKeyword Mode = "keyword"
	ModeDirect  Mode = "direct"
)

type Options struct {
	// TopN limits keyword mode to the best N matches; matches tied with
	// the Nth score are kept too. Zero means DefaultTopN.
	TopN int
	// Target, when set, drops leaves outside the target's subtree.
	Target string
}

// Plan is the decomposition result with the inputs that produced it.
type Plan struct {
	Mode       Mode               `json:"mode"`
	Components []string           `json:"components,omitempty"`
	Blast      *graph.BlastRadius `json:"blast_radius,omitempty"`
	Seeds      []string           `json:"seeds"`
	Tasks      []model.LeafTask   `json:"tasks"`
}

// Decompose returns one task per distinct leaf, sorted by node id. Graph
// mode is used when g is non-nil and the intent names at least one of its
// components; otherwise the router matches drive keyword mode.
func Decompose(t *tree.Tree, matches []router.Match, intent string, g *graph.Graph, opts Options) ([]model.LeafTask, Mode) {
	p := BuildPlan(t, matches, intent, g, opts)
	return p.Tasks, p.Mode
}

// BuildPlan is Decompose with the intermediate seeds and blast radius kept.
func BuildPlan(t *tree.Tree, matches []router.Match, intent string, g *graph.Graph, opts Options) Plan {
	var p Plan
	if g != nil {
		p.Components = g.MatchComponents(intent)
	}
	if len(p.Components) > 0 {
		br := g.BlastRadius(p.Components)
		p.Mode = ModeGraph
		p.Blast = &br
		p.Seeds = br.AffectedNodeIDs
	} else {
		p.Mode = ModeKeyword
		for _, m := range TopMatches(matches, opts.TopN) {
			p.Seeds = append(p.Seeds, m.NodeID)
		}
	}

	leaves := expandSeeds(t, p.Seeds)
	if opts.Target != "" {
		kept := leaves[:0]
		for _, id := range leaves {
			if t.Contains(opts.Target, id) {
				kept = append(kept, id)
			}
		}
		leaves = kept
	}
	sort.Strings(leaves)

	p.Tasks = make([]model.LeafTask, 0, len(leaves))
	for _, id := range leaves {
		task, err := NewTask(t, id, intent, g)
		if err != nil {
			continue
		}
		p.Tasks = append(p.Tasks, task)
	}
	return p
}

// TopMatches keeps the first n matches plus any further matches tied with
// the nth score. matches must already be ranked.
func TopMatches(matches []router.Match, n int) []router.Match {
	if n <= 0 {
		n = DefaultTopN
	}
	if len(matches) <= n {
		return matches
	}
	cut := matches[n-1].Score
	end := n
	for end < len(matches) && matches[end].Score == cut {
		end++
	}
	return matches[:end]
}

// expandSeeds maps seed nodes to leaves, first-seen order, no duplicates.
// Executives and ids missing from the tree are skipped.
func expandSeeds(t *tree.Tree, seeds []string) []string {
	seen := make(map[string]bool)
	var leaves []string
	for _, id := range seeds {
		n, err := t.Lookup(id)
		if err != nil {
			continue
		}
		var ids []string
		switch n.Scale {
		case model.ScaleCaptain:
			ids = []string{id}
		case model.ScaleDepartment:
			ids, _ = t.WalkToLeaves(id)
		default:
			continue
		}
		for _, leaf := range ids {
			if !seen[leaf] {
				seen[leaf] = true
				leaves = append(leaves, leaf)
			}
		}
	}
	return leaves
}

// Direct builds the single task of a direct run request, bypassing routing.
func Direct(t *tree.Tree, nodeID, text string, g *graph.Graph) (model.LeafTask, error) {
	task, err := NewTask(t, nodeID, text, g)
	if err != nil {
		return model.LeafTask{}, fmt.Errorf("direct task: %w", err)
	}
	return task, nil
}

// NewTask snapshots the node's metadata into a LeafTask.
func NewTask(t *tree.Tree, nodeID, intent string, g *graph.Graph) (model.LeafTask, error) {
	n, err := t.Lookup(nodeID)
	if err != nil {
		return model.LeafTask{}, err
	}
	task := model.LeafTask{
		NodeID:         n.ID,
		NodeName:       n.Name,
		Scale:          n.Scale,
		Intent:         intent,
		Lineage:        t.Lineage(n.ID),
		OwnedResources: cloneStrings(n.Metadata.OwnedResources),
		OwnedFiles:     cloneStrings(n.Metadata.OwnedFiles),
		OwnedFunctions: cloneStrings(n.Metadata.OwnedFunctions),
		Rules:          append([]model.Rule(nil), n.Rules...),
		Escalation: model.EscalationPolicy{
			Target:    n.Escalation.Target,
			Threshold: n.Escalation.Threshold,
			Cascade:   cloneStrings(n.Escalation.Cascade),
		},
		Tier: -1,
	}
	if g != nil {
		task.Components = g.ComponentsOwnedBy(n.ID)
		for _, name := range task.Components {
			c, err := g.Component(name)
			if err != nil {
				continue
			}
			if task.Tier < 0 || c.Tier < task.Tier {
				task.Tier = c.Tier
			}
		}
	}
	if task.Tier < 0 && n.Metadata.Tier != nil {
		task.Tier = *n.Metadata.Tier
	}
	return task, nil
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}
