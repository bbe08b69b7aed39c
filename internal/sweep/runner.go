package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ipsix/hostsweep/internal/capture"
	"github.com/ipsix/hostsweep/internal/collectors"
	"github.com/ipsix/hostsweep/internal/config"
	"github.com/ipsix/hostsweep/internal/report"
)

type TaskStatus string

const (
	TaskOK      TaskStatus = "ok"
	TaskFailed  TaskStatus = "failed"
	TaskTimeout TaskStatus = "timeout"
)

type TaskResult struct {
	Name     string
	Category string
	Status   TaskStatus
	Produced bool
	Artifact string
	Duration time.Duration
}

type RunResult struct {
	Tasks []TaskResult
}

func (r RunResult) Failed() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status != TaskOK {
			n++
		}
	}
	return n
}

// Runner executes the staged collection plan. Failures never propagate:
// a failed, timed-out, or empty task is logged and recorded, and the
// sweep carries on with whatever the other tasks produced.
type Runner struct {
	cfg     config.Config
	capture *capture.Runner
	logger  *zap.SugaredLogger
}

func NewRunner(cfg config.Config, capt *capture.Runner, logger *zap.SugaredLogger) *Runner {
	return &Runner{cfg: cfg, capture: capt, logger: logger}
}

// Run walks the stages in declared order. Within a stage the sequential
// tasks run first in declared order, then the parallel-eligible group
// runs concurrently and joins before the next stage starts. A timed-out
// task never cancels its siblings.
func (r *Runner) Run(ctx context.Context, run *report.Run, stages []collectors.Stage) RunResult {
	var result RunResult

	for _, stage := range stages {
		stageStart := time.Now()

		var sequential, parallel []collectors.Task
		for _, task := range stage.Tasks {
			if task.Parallel && r.cfg.Parallel {
				parallel = append(parallel, task)
			} else {
				sequential = append(sequential, task)
			}
		}

		for _, task := range sequential {
			result.Tasks = append(result.Tasks, r.runTask(ctx, run, task))
		}

		if len(parallel) > 0 {
			group := make([]TaskResult, len(parallel))
			var g errgroup.Group
			for i, task := range parallel {
				i, task := i, task
				g.Go(func() error {
					group[i] = r.runTask(ctx, run, task)
					return nil
				})
			}
			// Stage barrier: tasks record their own failures and
			// never return errors, so Wait only joins.
			_ = g.Wait()
			result.Tasks = append(result.Tasks, group...)
		}

		r.logger.Infow("stage complete",
			"stage", stage.Name,
			"tasks", len(stage.Tasks),
			"duration", time.Since(stageStart).String())
	}
	return result
}

func (r *Runner) runTask(ctx context.Context, run *report.Run, task collectors.Task) TaskResult {
	res := TaskResult{Name: task.Name, Category: task.Category, Artifact: task.Artifact}

	outcome, err := r.capture.Run(ctx, capture.Spec{
		Command:    task.Command,
		OutputPath: run.ArtifactPath(task.Artifact),
		Timeout:    r.timeout(task.Timeout),
	})
	res.Duration = outcome.Duration
	if err != nil {
		r.logger.Warnw("task could not run", "task", task.Name, "error", err)
		res.Status = TaskFailed
		return res
	}

	res.Produced = outcome.ProducedOutput
	switch {
	case outcome.TimedOut:
		res.Status = TaskTimeout
		r.logger.Warnw("task timed out",
			"task", task.Name, "timeout", r.timeout(task.Timeout).String())
	case !outcome.Succeeded:
		res.Status = TaskFailed
		r.logger.Warnw("task failed", "task", task.Name)
	default:
		res.Status = TaskOK
		if !outcome.ProducedOutput {
			r.logger.Warnw("task produced no output", "task", task.Name)
		}
	}
	return res
}

func (r *Runner) timeout(class collectors.TimeoutClass) time.Duration {
	switch class {
	case collectors.TimeoutLong:
		return r.cfg.TimeoutLong()
	case collectors.TimeoutMedium:
		return r.cfg.TimeoutMedium()
	default:
		return r.cfg.TimeoutShort()
	}
}
