package sweep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ipsix/hostsweep/internal/capture"
	"github.com/ipsix/hostsweep/internal/config"
	"github.com/ipsix/hostsweep/internal/lock"
	"github.com/ipsix/hostsweep/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ReportDir = filepath.Join(t.TempDir(), "reports")
	cfg.BaselineDir = filepath.Join(t.TempDir(), "baseline")
	cfg.LockDir = t.TempDir()
	cfg.RequireRoot = false
	cfg.HistoryEnabled = false
	return cfg
}

func TestEngineDryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.RequireRoot = true // dry-run must not need privileges

	outcome, err := New(cfg, logging.Nop()).Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if outcome != OutcomeLowRisk || outcome.ExitCode() != 0 {
		t.Fatalf("dry run must complete low-risk, got %v", outcome)
	}

	entries, err := os.ReadDir(cfg.ReportDir)
	if err != nil {
		t.Fatalf("read report root: %v", err)
	}
	runDir := ""
	for _, entry := range entries {
		if entry.IsDir() {
			if runDir != "" {
				t.Fatalf("expected one run directory, found more")
			}
			runDir = filepath.Join(cfg.ReportDir, entry.Name())
		}
	}
	if runDir == "" {
		t.Fatalf("no run directory produced")
	}
	if _, err := os.Stat(runDir + ".tar.gz"); err != nil {
		t.Fatalf("dry run should still archive: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(runDir, "process", "suspicious-processes.txt"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !capture.IsPlaceholder(raw) {
		t.Fatalf("dry-run artifact contains captured output: %q", raw)
	}

	sumRaw, err := os.ReadFile(filepath.Join(runDir, "summary.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	for _, want := range []string{`"dry_run": true`, `"risk_score": 0`, `"schema": "hostsweep/v1"`} {
		if !strings.Contains(string(sumRaw), want) {
			t.Fatalf("summary missing %q:\n%s", want, sumRaw)
		}
	}

	if _, err := os.Stat(filepath.Join(cfg.LockDir, "hostsweep.lock")); !os.IsNotExist(err) {
		t.Fatalf("dry run must not touch the lock")
	}
}

func TestEngineLockBusy(t *testing.T) {
	cfg := testConfig(t)

	held := lock.New(cfg.LockDir)
	if err := held.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release()

	outcome, err := New(cfg, logging.Nop()).Run(context.Background(), Options{})
	if err == nil {
		t.Fatalf("expected lock contention error")
	}
	if outcome != OutcomeRuntimeError || outcome.ExitCode() != 1 {
		t.Fatalf("expected runtime error outcome, got %v", outcome)
	}
	if _, statErr := os.Stat(cfg.ReportDir); !os.IsNotExist(statErr) {
		t.Fatalf("no report directory may exist after lock contention")
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		score, threshold int
		want             Outcome
	}{
		{10, 50, OutcomeLowRisk},
		{49, 50, OutcomeLowRisk},
		{50, 50, OutcomeHighRisk},
		{55, 50, OutcomeHighRisk},
		{0, 0, OutcomeHighRisk},
	}
	for _, tc := range cases {
		if got := Decide(tc.score, tc.threshold); got != tc.want {
			t.Fatalf("Decide(%d, %d) = %v, want %v", tc.score, tc.threshold, got, tc.want)
		}
	}
}

func TestOutcomeExitCodes(t *testing.T) {
	if OutcomeLowRisk.ExitCode() != 0 || OutcomeRuntimeError.ExitCode() != 1 || OutcomeHighRisk.ExitCode() != 2 {
		t.Fatalf("exit contract broken: %d %d %d",
			OutcomeLowRisk.ExitCode(), OutcomeRuntimeError.ExitCode(), OutcomeHighRisk.ExitCode())
	}
}
