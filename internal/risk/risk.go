// Package risk scores leaf tasks and maps scores onto the approval cascade.
package risk

import (
	"strings"

	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/textutil"
)

const (
	MinScore = 1
	MaxScore = 10
)

var baseByScale = map[model.Scale]int{
	model.ScaleExecutive:  8,
	model.ScaleDepartment: 6,
	model.ScaleCaptain:    3,
	model.ScaleModule:     2,
}

var (
	highRiskWords   = []string{"delete", "destroy", "force", "wipe", "drop", "truncate", "full-system-rebuild", "rm -rf"}
	mediumRiskWords = []string{"deploy", "push", "release", "migrate"}
	// sensitivePatterns are matched as substrings of lowercased owned file paths.
	sensitivePatterns = []string{"security", "credential", "secret", ".env", "deploy/", ".github/workflows", "k8s", "helm", "terraform"}
)

// ruleRelief applies when a node carries more than this many rules.
const ruleRelief = 3

// CalculateRisk is pure: the same task and graph always give the same score.
func CalculateRisk(task model.LeafTask, g *graph.Graph) int {
	score, ok := baseByScale[task.Scale]
	if !ok {
		score = baseByScale[model.ScaleCaptain]
	}

	intent := strings.ToLower(task.Intent)
	words := textutil.WordSet(intent)
	for _, w := range textutil.Words(intent) {
		words[w] = true
	}
	if containsAny(intent, words, highRiskWords) {
		score += 3
	}
	if containsAny(intent, words, mediumRiskWords) {
		score++
	}
	if hasSensitiveFile(task.OwnedFiles) {
		score++
	}
	if len(task.Rules) > ruleRelief {
		score--
	}

	if br := blastRisk(task, g); br > score {
		score = br
	}
	return clamp(score)
}

func blastRisk(task model.LeafTask, g *graph.Graph) int {
	if g == nil {
		return 0
	}
	comps := task.Components
	if len(comps) == 0 {
		comps = g.ComponentsOwnedBy(task.NodeID)
	}
	if len(comps) == 0 {
		return 0
	}
	return g.BlastRadius(comps).Risk
}

// containsAny matches single words against the word set and multi-word
// phrases against the raw text.
func containsAny(text string, words map[string]bool, list []string) bool {
	for _, w := range list {
		if strings.Contains(w, " ") {
			if strings.Contains(text, w) {
				return true
			}
			continue
		}
		if words[w] {
			return true
		}
	}
	return false
}

func hasSensitiveFile(files []string) bool {
	for _, f := range files {
		lf := strings.ToLower(f)
		for _, p := range sensitivePatterns {
			if strings.Contains(lf, p) {
				return true
			}
		}
	}
	return false
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

type Approval struct {
	Level    model.ApprovalLevel `json:"level"`
	Approved bool                `json:"approved"`
	Audit    bool                `json:"audit"`
}

// CheckApproval is total over all ints; out-of-range scores are clamped first.
func CheckApproval(score int) Approval {
	switch s := clamp(score); {
	case s <= 3:
		return Approval{Level: model.ApprovalCaptain, Approved: true}
	case s <= 6:
		return Approval{Level: model.ApprovalDirector, Approved: true, Audit: true}
	case s <= 8:
		return Approval{Level: model.ApprovalCTO}
	default:
		return Approval{Level: model.ApprovalHuman}
	}
}

// Assess scores a task and classifies it.
func Assess(task model.LeafTask, g *graph.Graph) model.RiskAssessment {
	score := CalculateRisk(task, g)
	a := CheckApproval(score)
	return model.RiskAssessment{Score: score, Level: a.Level, Approved: a.Approved, Audit: a.Audit}
}

var defaultTargets = map[model.ApprovalLevel]string{
	model.ApprovalDirector: "director",
	model.ApprovalCTO:      "cto",
	model.ApprovalHuman:    "human",
}

// DefaultEscalationTarget is used when a blocked task's node has no
// escalation target of its own. Captain level has none.
func DefaultEscalationTarget(level model.ApprovalLevel) string {
	return defaultTargets[level]
}

// EscalationTarget picks the node's own target, falling back to the
// default for the approval level.
func EscalationTarget(task model.LeafTask, level model.ApprovalLevel) string {
	if task.Escalation.Target != "" {
		return task.Escalation.Target
	}
	return DefaultEscalationTarget(level)
}
