package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/msageha/conductor/internal/model"
)

// SkippedError is recorded on tasks not dispatched after a tier failed.
const SkippedError = "not dispatched: earlier tier failed"

// tierBatches groups task indexes by tier, lowest first. Tasks without a
// tier form the last batch. Without a graph every task shares one batch.
func tierBatches(tasks []model.LeafTask, idxs []int, tiered bool) [][]int {
	if len(idxs) == 0 {
		return nil
	}
	if !tiered {
		return [][]int{append([]int(nil), idxs...)}
	}

	byTier := make(map[int][]int)
	var unknown []int
	for _, i := range idxs {
		if t := tasks[i].Tier; t >= 0 {
			byTier[t] = append(byTier[t], i)
		} else {
			unknown = append(unknown, i)
		}
	}
	tiers := make([]int, 0, len(byTier))
	for t := range byTier {
		tiers = append(tiers, t)
	}
	sort.Ints(tiers)

	batches := make([][]int, 0, len(tiers)+1)
	for _, t := range tiers {
		batches = append(batches, byTier[t])
	}
	if len(unknown) > 0 {
		batches = append(batches, unknown)
	}
	return batches
}

// dispatch runs the approved tasks batch by batch. A batch finishes
// completely before the next one starts. With fail-fast, the first failure
// stops new dispatches; tasks already running are left to finish.
func (e *Engine) dispatch(ctx context.Context, rc *RunContext, approved []int) {
	exec := e.executorFor(rc.Request.DryRun)
	failFast := e.opts.Execution.IsFailFast()
	limit := e.opts.Execution.MaxParallel
	if limit <= 0 {
		limit = model.DefaultMaxParallel
	}

	var stop atomic.Bool
	for n, batch := range tierBatches(rc.Tasks, approved, rc.Graph != nil) {
		if failFast && stop.Load() {
			for _, i := range batch {
				rc.Results[i] = skippedResult(rc.Tasks[i], rc.Assessments[i])
			}
			continue
		}
		e.logger.Debugf("run=%s phase=%s batch=%d tasks=%d", rc.RunID, rc.Phase(), n, len(batch))

		var g errgroup.Group
		g.SetLimit(limit)
		for _, i := range batch {
			g.Go(func() error {
				if failFast && stop.Load() {
					rc.Results[i] = skippedResult(rc.Tasks[i], rc.Assessments[i])
					return nil
				}
				res := e.execute(ctx, exec, rc.Tasks[i])
				res.Risk = rc.Assessments[i]
				rc.Results[i] = res
				if res.Status != model.LeafCompleted {
					stop.Store(true)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

func skippedResult(task model.LeafTask, a model.RiskAssessment) model.LeafResult {
	return model.LeafResult{
		NodeID:  task.NodeID,
		Status:  model.LeafFailed,
		Risk:    a,
		Error:   SkippedError,
		Skipped: true,
	}
}

// execute calls the executor, converting panics and malformed results into
// failed results.
func (e *Engine) execute(ctx context.Context, exec Executor, task model.LeafTask) (res model.LeafResult) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("node=%s executor panic: %v", task.NodeID, r)
			res = model.LeafResult{NodeID: task.NodeID, Status: model.LeafFailed, Error: fmt.Sprintf("executor panic: %v", r)}
		}
		if res.Duration == 0 {
			res.Duration = e.now().Sub(start)
		}
	}()

	if exec == nil {
		return model.LeafResult{NodeID: task.NodeID, Status: model.LeafFailed, Error: "no executor configured"}
	}
	if err := ctx.Err(); err != nil {
		return model.LeafResult{NodeID: task.NodeID, Status: model.LeafFailed, Error: fmt.Sprintf("not dispatched: %v", err)}
	}

	res = exec.Execute(ctx, task, e.opts.Execution.TaskTimeout())
	res.NodeID = task.NodeID
	switch res.Status {
	case model.LeafCompleted, model.LeafFailed:
	default:
		res.Error = fmt.Sprintf("executor returned status %q", res.Status)
		res.Status = model.LeafFailed
	}
	return res
}

func (e *Engine) executorFor(dryRun bool) Executor {
	if dryRun {
		return e.opts.DryRunExecutor
	}
	return e.opts.Executor
}
