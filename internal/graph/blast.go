package graph

import (
	"fmt"
	"sort"
	"strings"
)

// TierZeroRiskFloor is the minimum risk when any changed component sits in tier 0.
const TierZeroRiskFloor = 7

// BlastRadius is the set of components affected by a change.
type BlastRadius struct {
	Changed         []string `json:"changed"`
	Affected        []string `json:"affected"`
	AffectedTiers   []int    `json:"affected_tiers"`
	AffectedNodeIDs []string `json:"affected_node_ids"`
	Risk            int      `json:"risk"`
	Summary         string   `json:"summary"`
}

// riskBreakpoints maps the affected ratio (upper bound, inclusive) to a risk score.
var riskBreakpoints = []struct {
	maxRatio float64
	risk     int
}{
	{0.05, 2},
	{0.15, 3},
	{0.30, 5},
	{0.50, 6},
	{0.80, 7},
}

// RiskForRatio converts the fraction of affected components into a score.
func RiskForRatio(ratio float64) int {
	for _, bp := range riskBreakpoints {
		if ratio <= bp.maxRatio {
			return bp.risk
		}
	}
	return 9
}

// BlastRadius computes changed ∪ dependents(changed). Unknown names are
// ignored; if none are known the result is empty with Risk 0.
func (g *Graph) BlastRadius(changed []string) BlastRadius {
	known := g.BuildOrder(changed)
	br := BlastRadius{Changed: known}
	if len(known) == 0 || len(g.components) == 0 {
		br.Summary = "no known components changed"
		return br
	}

	affected := make(map[string]bool)
	tierZero := false
	for _, name := range known {
		affected[name] = true
		if g.components[name].Tier == 0 {
			tierZero = true
		}
		for _, dep := range g.Dependents(name) {
			affected[dep] = true
		}
	}
	br.Affected = g.BuildOrder(sortedSet(affected))

	tiers := make(map[int]bool)
	nodes := make(map[string]bool)
	for _, name := range br.Affected {
		c := g.components[name]
		tiers[c.Tier] = true
		if c.OwningNode != "" {
			nodes[c.OwningNode] = true
		}
	}
	for t := range tiers {
		br.AffectedTiers = append(br.AffectedTiers, t)
	}
	sort.Ints(br.AffectedTiers)
	br.AffectedNodeIDs = sortedSet(nodes)

	ratio := float64(len(br.Affected)) / float64(len(g.components))
	br.Risk = RiskForRatio(ratio)
	if tierZero && br.Risk < TierZeroRiskFloor {
		br.Risk = TierZeroRiskFloor
	}

	tierStrs := make([]string, len(br.AffectedTiers))
	for i, t := range br.AffectedTiers {
		tierStrs[i] = fmt.Sprintf("%d", t)
	}
	br.Summary = fmt.Sprintf("%d/%d components affected (%.0f%%), tiers [%s], risk %d",
		len(br.Affected), len(g.components), ratio*100, strings.Join(tierStrs, ","), br.Risk)
	return br
}

// TierBatches groups the known names into build-order batches, one per
// tier, lowest tier first.
func (g *Graph) TierBatches(names []string) [][]string {
	ordered := g.BuildOrder(names)
	var batches [][]string
	lastTier := -1
	for _, name := range ordered {
		t := g.components[name].Tier
		if len(batches) == 0 || t != lastTier {
			batches = append(batches, nil)
			lastTier = t
		}
		batches[len(batches)-1] = append(batches[len(batches)-1], name)
	}
	return batches
}
