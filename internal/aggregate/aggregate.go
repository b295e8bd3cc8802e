// Package aggregate merges leaf outcomes bottom-up through the tree,
// applying each node's rules and building escalation chains.
package aggregate

import (
	"fmt"

	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/tree"
)

// Aggregate builds the status tree under rootID (the tree root when empty).
// Subtrees without any result are omitted; if nothing under rootID has a
// result the returned node is nil.
func Aggregate(t *tree.Tree, results []model.LeafResult, rootID string) (*model.AggregateNode, []model.Escalation, error) {
	if rootID == "" {
		rootID = t.Root()
	}
	if _, err := t.Lookup(rootID); err != nil {
		return nil, nil, fmt.Errorf("aggregate: %w", err)
	}

	byNode := make(map[string]model.LeafResult, len(results))
	for _, r := range results {
		byNode[r.NodeID] = r
	}

	a := &aggregator{tree: t, results: byNode}
	root := a.visit(rootID)
	return root, a.escalations, nil
}

type aggregator struct {
	tree        *tree.Tree
	results     map[string]model.LeafResult
	escalations []model.Escalation
}

func (a *aggregator) visit(id string) *model.AggregateNode {
	n, err := a.tree.Lookup(id)
	if err != nil {
		return nil
	}
	agg := &model.AggregateNode{NodeID: id}
	for _, child := range n.Children {
		if c := a.visit(child); c != nil {
			agg.Children = append(agg.Children, c)
		}
	}
	if len(agg.Children) == 0 {
		// A leaf, or a branch that was itself the target of a direct task.
		if r, ok := a.results[id]; ok {
			agg.Status = leafStatus(r.Status)
			return agg
		}
		return nil
	}

	failedChild := ""
	for _, c := range agg.Children {
		if c.Status == model.AggregateFailed {
			failedChild = c.NodeID
			break
		}
	}
	if failedChild != "" {
		// Every firing rule applies; a block anywhere in the list wins
		// over escalate.
		var blockRule, escalateRule string
		for _, rule := range n.Rules {
			switch rule.Action {
			case model.RuleActionBlock:
				if blockRule == "" {
					blockRule = rule.Name
				}
			case model.RuleActionEscalate:
				if escalateRule == "" {
					escalateRule = rule.Name
				}
				reason := fmt.Sprintf("rule %q fired: child %s failed", rule.Name, failedChild)
				a.escalations = append(a.escalations, Escalate(a.tree, id, reason))
			}
		}
		switch {
		case blockRule != "":
			agg.FiredRule = blockRule
			agg.Status = model.AggregateBlocked
		case escalateRule != "":
			agg.FiredRule = escalateRule
			agg.Status = model.AggregateEscalated
		}
	}
	if agg.FiredRule == "" {
		agg.Status = Merge(agg.Children)
	}
	return agg
}

func leafStatus(s model.LeafStatus) model.AggregateStatus {
	switch s {
	case model.LeafCompleted:
		return model.AggregateCompleted
	case model.LeafBlocked:
		return model.AggregateBlocked
	default:
		return model.AggregateFailed
	}
}

// Merge combines child statuses with priority
// blocked > escalated > failed > partial > completed. Failures mixed with
// any completed work make the node partial; all-failed stays failed.
func Merge(children []*model.AggregateNode) model.AggregateStatus {
	var blocked, escalated, failed, partial, completed bool
	for _, c := range children {
		switch c.Status {
		case model.AggregateBlocked:
			blocked = true
		case model.AggregateEscalated:
			escalated = true
		case model.AggregateFailed:
			failed = true
		case model.AggregatePartial:
			partial = true
		case model.AggregateCompleted:
			completed = true
		}
	}
	switch {
	case blocked:
		return model.AggregateBlocked
	case escalated:
		return model.AggregateEscalated
	case failed && (completed || partial):
		return model.AggregatePartial
	case failed:
		return model.AggregateFailed
	case partial:
		return model.AggregatePartial
	default:
		return model.AggregateCompleted
	}
}

// Escalate builds the escalation record for node from, walking its
// escalation cascade, or its target when the cascade is empty. The record
// is unresolved when nothing is walked or the last node walked has no
// escalation target of its own.
func Escalate(t *tree.Tree, from, reason string) model.Escalation {
	esc := model.Escalation{From: from, Reason: reason}
	n, err := t.Lookup(from)
	if err != nil {
		esc.Unresolved = true
		return esc
	}

	walk := n.Escalation.Cascade
	if len(walk) == 0 && n.Escalation.Target != "" {
		walk = []string{n.Escalation.Target}
	}
	esc.Cascade = append([]string(nil), walk...)
	if len(walk) == 0 {
		esc.Unresolved = true
		return esc
	}

	esc.To = walk[len(walk)-1]
	last, err := t.Lookup(esc.To)
	if err != nil || last.Escalation.Target == "" {
		esc.Unresolved = true
	}
	return esc
}

// RunStatus derives the overall run status from the aggregate root and the
// leaf results. A run where some tasks were blocked at review and the rest
// completed without failures is partial_blocked.
func RunStatus(root *model.AggregateNode, results []model.LeafResult) model.RunStatus {
	if len(results) == 0 {
		return model.RunCompleted
	}

	var blocked, completed, failed bool
	for _, r := range results {
		switch r.Status {
		case model.LeafBlocked:
			blocked = true
		case model.LeafCompleted:
			completed = true
		case model.LeafFailed:
			failed = true
		}
	}
	if blocked && completed && !failed && (root == nil || root.FiredRule == "") {
		return model.RunPartialBlocked
	}
	if root == nil {
		// nothing aggregated: merge the leaf outcomes directly
		leaves := make([]*model.AggregateNode, 0, len(results))
		for _, r := range results {
			leaves = append(leaves, &model.AggregateNode{NodeID: r.NodeID, Status: leafStatus(r.Status)})
		}
		return model.RunStatus(Merge(leaves))
	}
	return model.RunStatus(root.Status)
}
