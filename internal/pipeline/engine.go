// Package pipeline runs the eight-phase coordination state machine:
// INTAKE, TRIAGE, PLAN, REVIEW, EXECUTE, VERIFY, INTEGRATE, SHIP.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msageha/conductor/internal/agent"
	"github.com/msageha/conductor/internal/aggregate"
	"github.com/msageha/conductor/internal/decompose"
	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/risk"
	"github.com/msageha/conductor/internal/router"
	"github.com/msageha/conductor/internal/store"
)

var ErrInvalidRequest = errors.New("invalid run request")

// Executor performs one leaf task. It must be safe for concurrent use and
// report timeouts and failures as failed results rather than panicking.
type Executor interface {
	Execute(ctx context.Context, task model.LeafTask, timeout time.Duration) model.LeafResult
}

// ArtifactStore receives one record per phase transition and one with the
// final trace.
type ArtifactStore interface {
	Record(ctx context.Context, rec events.Record) error
}

type Options struct {
	Execution model.ExecutionConfig
	TopN      int
	Executor  Executor
	// DryRunExecutor handles dry-run requests; defaults to agent.DryRunExecutor.
	DryRunExecutor Executor
	// Store is wrapped so that recording never blocks or fails a run.
	Store  ArtifactStore
	Logger *logging.Logger
}

type Engine struct {
	source Source
	opts   Options
	store  *store.Async
	logger *logging.Logger
	now    func() time.Time
}

func NewEngine(src Source, opts Options) *Engine {
	if opts.DryRunExecutor == nil {
		opts.DryRunExecutor = agent.DryRunExecutor{}
	}
	if opts.TopN <= 0 {
		opts.TopN = decompose.DefaultTopN
	}
	var inner store.Recorder = store.Nop{}
	if opts.Store != nil {
		inner = opts.Store
	}
	logger := opts.Logger.Named("pipeline")
	return &Engine{
		source: src,
		opts:   opts,
		store:  store.NewAsync(inner, store.DefaultAsyncBuffer, logger),
		logger: logger,
		now:    time.Now,
	}
}

// Close flushes pending store records.
func (e *Engine) Close(ctx context.Context) error {
	return e.store.Close(ctx)
}

// Run executes one request through every phase. The returned trace is
// always non-nil. The error is non-nil only when the run was aborted at
// INTAKE by a *model.ConfigError or an invalid request.
func (e *Engine) Run(ctx context.Context, req model.RunRequest) (*model.ExecutionTrace, error) {
	runID, err := model.NewID(model.IDRun)
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	rc := newRunContext(runID, req, e.now())

	e.advance(ctx, rc, model.PhaseIntake, map[string]any{"dry_run": req.DryRun, "direct": req.Direct != nil})
	defs, err := e.source.Load(ctx)
	if err == nil {
		err = validateRequest(defs, req)
	}
	if err != nil {
		e.logger.Errorf("run=%s phase=%s aborted: %v", rc.RunID, rc.Phase(), err)
		tr := rc.trace(model.RunFailed, e.now())
		tr.Error = err.Error()
		e.record(ctx, events.NewTraceRecord(tr))
		return tr, err
	}
	rc.Tree, rc.Graph = defs.Tree, defs.Graph

	e.advance(ctx, rc, model.PhaseTriage, nil)
	if req.Direct == nil {
		rc.Matches = router.Route(req.Intent, rc.Tree)
	}
	e.logger.Infof("run=%s phase=%s matches=%d", rc.RunID, rc.Phase(), len(rc.Matches))

	e.advance(ctx, rc, model.PhasePlan, map[string]any{"matches": len(rc.Matches)})
	e.plan(rc)
	e.logger.Infof("run=%s phase=%s mode=%s tasks=%d", rc.RunID, rc.Phase(), rc.Mode, len(rc.Tasks))

	e.advance(ctx, rc, model.PhaseReview, map[string]any{"mode": string(rc.Mode), "tasks": len(rc.Tasks)})
	approved := e.review(rc)
	e.logger.Infof("run=%s phase=%s approved=%d blocked=%d", rc.RunID, rc.Phase(), rc.Counts.Approved, rc.Counts.Blocked)

	e.advance(ctx, rc, model.PhaseExecute, map[string]any{"approved": rc.Counts.Approved, "blocked": rc.Counts.Blocked})
	e.dispatch(ctx, rc, approved)

	e.advance(ctx, rc, model.PhaseVerify, nil)
	e.verify(rc)

	e.advance(ctx, rc, model.PhaseIntegrate, map[string]any{"escalations": len(rc.Escalations)})
	root, escs, err := aggregate.Aggregate(rc.Tree, rc.Results, rc.TargetID())
	if err != nil {
		e.logger.Warnf("run=%s phase=%s aggregate: %v", rc.RunID, rc.Phase(), err)
	}
	rc.Root = root
	rc.Escalations = append(rc.Escalations, escs...)

	e.advance(ctx, rc, model.PhaseShip, nil)
	status := aggregate.RunStatus(rc.Root, rc.Results)
	tr := rc.trace(status, e.now())
	e.logger.Infof("run=%s phase=%s status=%s escalations=%d duration=%s",
		rc.RunID, rc.Phase(), status, len(tr.Escalations), tr.Duration.Round(time.Millisecond))
	e.record(ctx, events.NewTraceRecord(tr))
	return tr, nil
}

func validateRequest(defs Definitions, req model.RunRequest) error {
	if req.TargetNode != "" && !defs.Tree.Has(req.TargetNode) {
		return fmt.Errorf("%w: unknown target_node %q", ErrInvalidRequest, req.TargetNode)
	}
	if req.Direct != nil {
		if req.Direct.Node == "" {
			return fmt.Errorf("%w: direct.node is empty", ErrInvalidRequest)
		}
		if !defs.Tree.Has(req.Direct.Node) {
			return fmt.Errorf("%w: unknown direct node %q", ErrInvalidRequest, req.Direct.Node)
		}
		if req.TargetNode != "" && !defs.Tree.Contains(req.TargetNode, req.Direct.Node) {
			return fmt.Errorf("%w: direct node %q is outside target_node %q", ErrInvalidRequest, req.Direct.Node, req.TargetNode)
		}
	}
	return nil
}

func (e *Engine) plan(rc *RunContext) {
	if d := rc.Request.Direct; d != nil {
		rc.Mode = decompose.ModeDirect
		text := d.TaskText
		if text == "" {
			text = rc.Request.Intent
		}
		task, err := decompose.Direct(rc.Tree, d.Node, text, rc.Graph)
		if err == nil {
			rc.Tasks = []model.LeafTask{task}
		}
		return
	}
	rc.Tasks, rc.Mode = decompose.Decompose(rc.Tree, rc.Matches, rc.Request.Intent, rc.Graph,
		decompose.Options{TopN: e.opts.TopN, Target: rc.Request.TargetNode})
}

// review assesses every task. Blocked tasks get their final result here;
// the indexes of approved tasks are returned for dispatch.
func (e *Engine) review(rc *RunContext) []int {
	rc.Assessments = make([]model.RiskAssessment, len(rc.Tasks))
	rc.Results = make([]model.LeafResult, len(rc.Tasks))
	rc.Counts.Total = len(rc.Tasks)

	var approved []int
	for i, task := range rc.Tasks {
		a := risk.Assess(task, rc.Graph)
		rc.Assessments[i] = a
		if a.Approved {
			approved = append(approved, i)
			rc.Counts.Approved++
			if a.Audit {
				e.logger.Infof("run=%s phase=%s audit node=%s score=%d level=%s", rc.RunID, rc.Phase(), task.NodeID, a.Score, a.Level)
			}
			continue
		}
		rc.Counts.Blocked++
		rc.Results[i] = model.LeafResult{
			NodeID:           task.NodeID,
			Status:           model.LeafBlocked,
			Risk:             a,
			EscalationTarget: risk.EscalationTarget(task, a.Level),
		}
		e.logger.Warnf("run=%s phase=%s blocked node=%s score=%d level=%s", rc.RunID, rc.Phase(), task.NodeID, a.Score, a.Level)
	}
	return approved
}

// verify builds an escalation for every task that ran and failed.
func (e *Engine) verify(rc *RunContext) {
	for i := range rc.Results {
		r := &rc.Results[i]
		if r.Status != model.LeafFailed || r.Skipped {
			continue
		}
		esc := aggregate.Escalate(rc.Tree, r.NodeID, "task failed: "+r.Error)
		r.EscalationTarget = esc.To
		rc.Escalations = append(rc.Escalations, esc)
		e.logger.Warnf("run=%s phase=%s escalate from=%s to=%s unresolved=%t", rc.RunID, rc.Phase(), esc.From, esc.To, esc.Unresolved)
	}
}

func (e *Engine) advance(ctx context.Context, rc *RunContext, to model.Phase, details map[string]any) {
	from := rc.Phase()
	if err := rc.enter(to); err != nil {
		// Phases are entered by Run in a fixed order; reaching this is a bug.
		panic(err)
	}
	e.logger.Debugf("run=%s phase=%s", rc.RunID, to)
	e.record(ctx, events.NewPhaseRecord(rc.RunID, from, to, details))
}

func (e *Engine) record(ctx context.Context, rec events.Record) {
	_ = e.store.Record(ctx, rec)
}

// PlanPreview is a run stopped after REVIEW: what would be dispatched and how
// each task was classified.
type PlanPreview struct {
	Mode        decompose.Mode         `json:"mode"`
	Matches     []router.Match         `json:"matches"`
	Components  []string               `json:"components,omitempty"`
	Blast       *graph.BlastRadius     `json:"blast_radius,omitempty"`
	Tasks       []model.LeafTask       `json:"tasks"`
	Assessments []model.RiskAssessment `json:"assessments"`
}

// Preview routes, decomposes and reviews req without dispatching or
// recording anything.
func (e *Engine) Preview(ctx context.Context, req model.RunRequest) (*PlanPreview, error) {
	defs, err := e.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(defs, req); err != nil {
		return nil, err
	}

	p := &PlanPreview{}
	if d := req.Direct; d != nil {
		text := d.TaskText
		if text == "" {
			text = req.Intent
		}
		task, err := decompose.Direct(defs.Tree, d.Node, text, defs.Graph)
		if err != nil {
			return nil, err
		}
		p.Mode = decompose.ModeDirect
		p.Tasks = []model.LeafTask{task}
	} else {
		p.Matches = router.Route(req.Intent, defs.Tree)
		plan := decompose.BuildPlan(defs.Tree, p.Matches, req.Intent, defs.Graph,
			decompose.Options{TopN: e.opts.TopN, Target: req.TargetNode})
		p.Mode, p.Components, p.Blast, p.Tasks = plan.Mode, plan.Components, plan.Blast, plan.Tasks
	}
	for _, task := range p.Tasks {
		p.Assessments = append(p.Assessments, risk.Assess(task, defs.Graph))
	}
	return p, nil
}
