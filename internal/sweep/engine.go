package sweep

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ipsix/hostsweep/internal/baseline"
	"github.com/ipsix/hostsweep/internal/buildinfo"
	"github.com/ipsix/hostsweep/internal/capture"
	"github.com/ipsix/hostsweep/internal/collectors"
	"github.com/ipsix/hostsweep/internal/config"
	"github.com/ipsix/hostsweep/internal/history"
	"github.com/ipsix/hostsweep/internal/lock"
	"github.com/ipsix/hostsweep/internal/notify"
	"github.com/ipsix/hostsweep/internal/report"
	"github.com/ipsix/hostsweep/internal/risk"
)

// Options are the per-invocation mode switches the CLI layer passes in
// alongside the resolved configuration.
type Options struct {
	DryRun       bool
	SkipCompare  bool
	SaveBaseline bool
}

// Engine runs one complete sweep: lock, collect, compare, score,
// summarize, archive, record, notify, decide. Only a failed
// precondition (privilege, lock, report creation) aborts; every later
// failure degrades the report instead.
type Engine struct {
	cfg    config.Config
	logger *zap.SugaredLogger
}

func New(cfg config.Config, logger *zap.SugaredLogger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

func (e *Engine) Run(ctx context.Context, opts Options) (Outcome, error) {
	start := time.Now()
	startRSS := maxRSSMB()

	if e.cfg.RequireRoot && !opts.DryRun && os.Geteuid() != 0 {
		return OutcomeRuntimeError, fmt.Errorf("root privileges required (REQUIRE_ROOT=false overrides)")
	}

	// Dry-run mutates nothing worth guarding, so it skips the lock.
	if !opts.DryRun {
		lk := lock.New(e.cfg.LockDir)
		if err := lk.Acquire(); err != nil {
			return OutcomeRuntimeError, err
		}
		defer func() {
			if err := lk.Release(); err != nil {
				e.logger.Warnw("lock release failed", "error", err)
			}
		}()
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	store := report.NewStore(e.cfg.ReportDir)
	run, err := store.CreateRun(host, start, collectors.Categories())
	if err != nil {
		return OutcomeRuntimeError, fmt.Errorf("create report: %w", err)
	}
	e.logger.Infow("sweep starting",
		"run", run.ID, "dry_run", opts.DryRun, "paranoid", e.cfg.Paranoid)

	stages := collectors.Plan(e.cfg)
	capt := capture.NewRunner(e.logger, opts.DryRun, e.cfg.Paranoid)
	result := NewRunner(e.cfg, capt, e.logger).Run(ctx, run, stages)
	if failed := result.Failed(); failed > 0 {
		e.logger.Warnw("collection degraded", "failed_tasks", failed)
	}

	diffCount := e.compare(run, opts)
	counts := e.collect(run, stages, diffCount, opts)
	score := risk.Score(counts, e.cfg.Paranoid)

	summary := report.Summary{
		Version:        buildinfo.Version,
		Host:           host,
		Timestamp:      run.Timestamp,
		RunPath:        run.Dir,
		LookbackHours:  e.cfg.LookbackHours,
		Paranoid:       e.cfg.Paranoid,
		Parallel:       e.cfg.Parallel,
		DryRun:         opts.DryRun,
		RuntimeSeconds: time.Since(start).Seconds(),
		MemoryDeltaMB:  memoryDelta(startRSS),
		CommonPorts:    e.cfg.CommonPortsString(),
		Counts:         counts.Map(),
		RiskScore:      score,
	}
	if err := run.WriteSummaries(summary); err != nil {
		e.logger.Errorw("summary write failed", "error", err)
	}

	// The one-line feed for a central log collector.
	e.logger.Infow("sweep complete",
		"version", buildinfo.Version,
		"host", host,
		"timestamp", run.Timestamp.Format(time.RFC3339),
		"run_path", run.Dir,
		"risk_score", score,
		"suspicious_process_matches", counts.SuspiciousProcesses,
		"recent_system_executables", counts.RecentExecutables,
		"recent_home_files", counts.RecentHomeFiles,
		"uncommon_established_connections", counts.UncommonEstablished,
		"non_empty_baseline_diffs", counts.NonEmptyDiffs,
		"integrity_findings", counts.IntegrityFindings,
	)

	archived := e.archive(store, run)
	e.record(run, summary, archived, opts)

	if opts.SaveBaseline && !opts.DryRun {
		saved, err := baseline.Save(run.Dir, e.cfg.BaselineDir, e.cfg.Paranoid, e.logger)
		if err != nil {
			e.logger.Warnw("baseline save failed", "error", err)
		} else {
			e.logger.Infow("baseline saved", "dir", e.cfg.BaselineDir, "artifacts", len(saved))
		}
	}

	if score >= e.cfg.NotifyThreshold {
		e.notify(run, score)
	}

	return Decide(score, e.cfg.HighRiskThreshold), nil
}

// compare diffs the run against the trusted baseline before scoring,
// because the non-empty diff count is itself a scored signal. Dry-run
// produces placeholder artifacts, so comparing would only report noise.
func (e *Engine) compare(run *report.Run, opts Options) int {
	if opts.SkipCompare || opts.DryRun {
		return 0
	}
	if _, err := os.Stat(e.cfg.BaselineDir); err != nil {
		e.logger.Debugw("no baseline, compare skipped", "dir", e.cfg.BaselineDir)
		return 0
	}
	diffs, err := baseline.Compare(run.Dir, e.cfg.BaselineDir, e.cfg.Paranoid, e.logger)
	if err != nil {
		e.logger.Warnw("baseline compare failed", "error", err)
		return 0
	}
	n := baseline.NonEmpty(diffs)
	if n > 0 {
		e.logger.Warnw("baseline drift detected", "artifacts", n)
	}
	return n
}

func (e *Engine) collect(run *report.Run, stages []collectors.Stage, diffCount int, opts Options) risk.Counts {
	if opts.DryRun {
		// Placeholder artifacts carry no evidence.
		return risk.Counts{}
	}
	artifacts := map[risk.Signal]string{}
	for sig, rel := range collectors.SignalArtifacts(stages) {
		artifacts[sig] = run.ArtifactPath(rel)
	}
	return risk.Collect(artifacts, diffCount)
}

func (e *Engine) archive(store *report.Store, run *report.Run) bool {
	dest, err := store.Archive(run)
	ok := err == nil
	if err != nil {
		e.logger.Warnw("archive failed", "error", err)
	} else {
		e.logger.Infow("run archived", "archive", dest)
	}
	if err := run.SetArchived(ok); err != nil {
		e.logger.Warnw("archived flag update failed", "error", err)
	}
	return ok
}

func (e *Engine) record(run *report.Run, summary report.Summary, archived bool, opts Options) {
	if !e.cfg.HistoryEnabled || opts.DryRun {
		return
	}
	catalog, err := history.Open(e.cfg.ReportDir)
	if err != nil {
		e.logger.Warnw("history catalog unavailable", "error", err)
		return
	}
	defer catalog.Close()

	err = catalog.Record(history.Record{
		RunID:          run.ID,
		Host:           run.Host,
		Timestamp:      run.Timestamp,
		RunPath:        run.Dir,
		RiskScore:      summary.RiskScore,
		Counts:         summary.Counts,
		Archived:       archived,
		RuntimeSeconds: summary.RuntimeSeconds,
	})
	if err != nil {
		e.logger.Warnw("history record failed", "error", err)
		return
	}
	if days := e.cfg.HistoryRetentionDays; days > 0 {
		cutoff := run.Timestamp.AddDate(0, 0, -days)
		if pruned, err := catalog.PruneOlderThan(cutoff); err != nil {
			e.logger.Warnw("history prune failed", "error", err)
		} else if pruned > 0 {
			e.logger.Infow("history pruned", "records", pruned)
		}
	}
}

func (e *Engine) notify(run *report.Run, score int) {
	machine, err := run.SummaryJSON()
	if err != nil {
		e.logger.Warnw("notification skipped, summary unreadable", "error", err)
		return
	}
	human, err := os.ReadFile(run.ArtifactPath("summary.txt"))
	if err != nil {
		human = machine
	}
	notify.New(e.cfg, e.logger).Dispatch(machine, string(human), score)
}

func maxRSSMB() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	// Maxrss is KiB on Linux.
	return float64(ru.Maxrss) / 1024.0
}

func memoryDelta(startMB float64) float64 {
	delta := maxRSSMB() - startMB
	if delta < 0 {
		return 0
	}
	return delta
}
