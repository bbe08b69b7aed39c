package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TriggerFunc runs one sweep. The scheduler only cares that it returns;
// outcomes are the trigger's business to log.
type TriggerFunc func(ctx context.Context)

// Scheduler fires sweeps on a cron expression. A trigger that lands
// while the previous sweep is still running is skipped, not queued:
// overlapping runs are what the exclusive lock exists to refuse, and
// skipping here avoids burning the lock error on a known condition.
type Scheduler struct {
	logger     *zap.SugaredLogger
	spec       string
	runOnStart bool
	trigger    TriggerFunc
	running    atomic.Bool
}

func New(logger *zap.SugaredLogger, spec string, runOnStart bool, trigger TriggerFunc) (*Scheduler, error) {
	if spec == "" {
		return nil, fmt.Errorf("cron spec is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return &Scheduler{
		logger:     logger,
		spec:       spec,
		runOnStart: runOnStart,
		trigger:    trigger,
	}, nil
}

// Run blocks until ctx is cancelled, then drains the in-flight trigger
// before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.fire(ctx) }); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	s.logger.Infow("scheduler started", "cron", s.spec, "run_on_start", s.runOnStart)
	if s.runOnStart {
		s.fire(ctx)
	}
	c.Start()

	<-ctx.Done()
	s.logger.Infow("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warnw("sweep trigger skipped, previous run still active")
		return
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("sweep panic recovered",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	s.trigger(ctx)
}
