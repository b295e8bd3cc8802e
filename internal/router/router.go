// Package router scores tree nodes against a free-text intent.
package router

import (
	"sort"

	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/textutil"
	"github.com/msageha/conductor/internal/tree"
)

// CaptainBonus is added to a captain's score when it matched at all, so
// leaves outrank their departments on ambiguous intents.
const CaptainBonus = 0.5

type Match struct {
	NodeID string  `json:"node_id" yaml:"node_id"`
	Score  float64 `json:"score" yaml:"score"`
}

// IntentWords returns the distinct intent tokens. "auth-core" contributes
// "auth" and "core" once each; node token sets already hold the sub-tokens
// of every owned name, so the whole word would only count the same match
// twice.
func IntentWords(intent string) map[string]bool {
	return textutil.WordSet(intent)
}

// Route ranks every node with a non-zero score, highest first, ties
// broken by node id.
func Route(intent string, t *tree.Tree) []Match {
	words := IntentWords(intent)
	if len(words) == 0 {
		return nil
	}

	var matches []Match
	for _, id := range t.IDs() {
		tokens := t.Tokens(id)
		hits := 0
		for w := range words {
			if tokens[w] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits)
		if n, err := t.Lookup(id); err == nil && n.Scale == model.ScaleCaptain {
			score += CaptainBonus
		}
		matches = append(matches, Match{NodeID: id, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].NodeID < matches[j].NodeID
	})
	return matches
}
