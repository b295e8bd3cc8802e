package pipeline

import (
	"fmt"
	"time"

	"github.com/msageha/conductor/internal/decompose"
	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/router"
	"github.com/msageha/conductor/internal/tree"
)

// RunContext holds everything one run accumulates. It is owned by a single
// Run call; only EXECUTE writes to it from several goroutines, and then
// each goroutine writes its own Results slot.
type RunContext struct {
	RunID   string
	Request model.RunRequest
	Tree    *tree.Tree
	Graph   *graph.Graph

	Matches     []router.Match
	Mode        decompose.Mode
	Tasks       []model.LeafTask
	Assessments []model.RiskAssessment
	Results     []model.LeafResult
	Escalations []model.Escalation
	Root        *model.AggregateNode
	Counts      model.TaskCounts

	phase   model.Phase
	phases  []model.Phase
	started time.Time
}

func newRunContext(runID string, req model.RunRequest, now time.Time) *RunContext {
	return &RunContext{RunID: runID, Request: req, started: now}
}

func (rc *RunContext) Phase() model.Phase {
	return rc.phase
}

func (rc *RunContext) Phases() []model.Phase {
	return append([]model.Phase(nil), rc.phases...)
}

// enter moves the run to phase p, enforcing the forward-only order.
func (rc *RunContext) enter(p model.Phase) error {
	if len(rc.phases) == 0 {
		if p != model.PhaseIntake {
			return fmt.Errorf("run must start at %s, not %s", model.PhaseIntake, p)
		}
	} else if err := model.ValidatePhaseTransition(rc.phase, p); err != nil {
		return err
	}
	rc.phase = p
	rc.phases = append(rc.phases, p)
	return nil
}

// TargetID is the aggregation root: the requested target or the tree root.
func (rc *RunContext) TargetID() string {
	if rc.Request.TargetNode != "" {
		return rc.Request.TargetNode
	}
	if rc.Tree != nil {
		return rc.Tree.Root()
	}
	return ""
}

func (rc *RunContext) intent() string {
	if rc.Request.Direct != nil && rc.Request.Intent == "" {
		return rc.Request.Direct.TaskText
	}
	return rc.Request.Intent
}

func (rc *RunContext) trace(status model.RunStatus, now time.Time) *model.ExecutionTrace {
	return &model.ExecutionTrace{
		SchemaVersion: 1,
		FileType:      "trace",
		RunID:         rc.RunID,
		Intent:        rc.intent(),
		TargetID:      rc.TargetID(),
		DryRun:        rc.Request.DryRun,
		Mode:          string(rc.Mode),
		Phases:        rc.Phases(),
		Counts:        rc.Counts,
		Results:       append([]model.LeafResult(nil), rc.Results...),
		Root:          rc.Root,
		Escalations:   append([]model.Escalation(nil), rc.Escalations...),
		Status:        status,
		Duration:      now.Sub(rc.started),
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
}
