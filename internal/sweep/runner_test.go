package sweep

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipsix/hostsweep/internal/capture"
	"github.com/ipsix/hostsweep/internal/collectors"
	"github.com/ipsix/hostsweep/internal/config"
	"github.com/ipsix/hostsweep/internal/logging"
	"github.com/ipsix/hostsweep/internal/report"
)

func newRunnerFixture(t *testing.T, cfg config.Config) (*Runner, *report.Run) {
	t.Helper()
	store := report.NewStore(filepath.Join(t.TempDir(), "reports"))
	run, err := store.CreateRun("testhost", time.Now(), []string{"network", "process"})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	capt := capture.NewRunner(logging.Nop(), false, false)
	return NewRunner(cfg, capt, logging.Nop()), run
}

func TestRunnerStageBarrier(t *testing.T) {
	cfg := config.Default()
	r, run := newRunnerFixture(t, cfg)

	// The second stage reads what a slow parallel task of the first
	// stage wrote; it only works if the stage fully joins first.
	stages := []collectors.Stage{
		{
			Name: "network",
			Tasks: []collectors.Task{
				{Name: "slow", Category: "network", Parallel: true,
					Command:  "sleep 0.3; echo slow-output",
					Artifact: "network/slow.txt"},
				{Name: "fast", Category: "network", Parallel: true,
					Command:  "echo fast-output",
					Artifact: "network/fast.txt"},
			},
		},
		{
			Name: "process",
			Tasks: []collectors.Task{
				{Name: "reader", Category: "process",
					Command:  "cat " + run.ArtifactPath("network/slow.txt"),
					Artifact: "process/reader.txt"},
			},
		},
	}

	result := r.Run(context.Background(), run, stages)
	if len(result.Tasks) != 3 || result.Failed() != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	raw, err := os.ReadFile(run.ArtifactPath("process/reader.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "slow-output\n" {
		t.Fatalf("stage 2 ran before stage 1 joined: %q", raw)
	}
}

func TestRunnerTimeoutDoesNotCancelSiblings(t *testing.T) {
	cfg := config.Default()
	cfg.TimeoutShortSec = 1
	r, run := newRunnerFixture(t, cfg)

	stages := []collectors.Stage{{
		Name: "network",
		Tasks: []collectors.Task{
			{Name: "stuck", Category: "network", Parallel: true,
				Command:  "sleep 10",
				Artifact: "network/stuck.txt"},
			{Name: "sibling", Category: "network", Parallel: true,
				Command:  "sleep 0.2; echo fine",
				Artifact: "network/sibling.txt"},
		},
	}}

	result := r.Run(context.Background(), run, stages)
	byName := map[string]TaskResult{}
	for _, tr := range result.Tasks {
		byName[tr.Name] = tr
	}
	if byName["stuck"].Status != TaskTimeout {
		t.Fatalf("expected timeout, got %+v", byName["stuck"])
	}
	if byName["sibling"].Status != TaskOK || !byName["sibling"].Produced {
		t.Fatalf("sibling affected by timeout: %+v", byName["sibling"])
	}
}

func TestRunnerFailureIsNonFatal(t *testing.T) {
	cfg := config.Default()
	r, run := newRunnerFixture(t, cfg)

	stages := []collectors.Stage{{
		Name: "network",
		Tasks: []collectors.Task{
			{Name: "broken", Category: "network",
				Command:  "exit 7",
				Artifact: "network/broken.txt"},
			{Name: "after", Category: "network",
				Command:  "echo still-here",
				Artifact: "network/after.txt"},
		},
	}}

	result := r.Run(context.Background(), run, stages)
	if result.Tasks[0].Status != TaskFailed || result.Tasks[0].Produced {
		t.Fatalf("expected recorded failure: %+v", result.Tasks[0])
	}
	if result.Tasks[1].Status != TaskOK {
		t.Fatalf("run did not continue past failure: %+v", result.Tasks[1])
	}
}

func TestRunnerSequentialWhenParallelDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Parallel = false
	r, run := newRunnerFixture(t, cfg)

	marker := run.ArtifactPath("network/order.txt")
	stages := []collectors.Stage{{
		Name: "network",
		Tasks: []collectors.Task{
			{Name: "first", Category: "network", Parallel: true,
				Command:  "echo first >> " + marker,
				Artifact: "network/first.txt"},
			{Name: "second", Category: "network", Parallel: true,
				Command:  "echo second >> " + marker,
				Artifact: "network/second.txt"},
		},
	}}

	result := r.Run(context.Background(), run, stages)
	if len(result.Tasks) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Tasks))
	}
	if result.Tasks[0].Name != "first" || result.Tasks[1].Name != "second" {
		t.Fatalf("declared order not preserved: %+v", result.Tasks)
	}
	raw, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if string(raw) != "first\nsecond\n" {
		t.Fatalf("tasks did not run sequentially: %q", raw)
	}
}
