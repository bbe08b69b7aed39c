package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Spec describes one external collection command: what to run, where its
// stdout lands, and how long it may take. The engine never interprets
// the command text.
type Spec struct {
	Command    string
	OutputPath string
	Timeout    time.Duration
}

// Outcome reports how a capture ended. TimedOut implies !Succeeded.
type Outcome struct {
	Succeeded      bool
	ProducedOutput bool
	TimedOut       bool
	Duration       time.Duration
}

const placeholder = "dry-run: no command executed\n"

// paranoidEnv is the restricted environment used when paranoid mode is
// active: fixed PATH, C locale, nothing inherited from the caller.
var paranoidEnv = []string{
	"PATH=/usr/sbin:/usr/bin:/sbin:/bin",
	"LC_ALL=C",
	"HOME=/root",
}

// Runner executes capture specs through /bin/sh. DryRun replaces every
// execution with a placeholder artifact; Paranoid scrubs the command
// environment.
type Runner struct {
	DryRun   bool
	Paranoid bool

	logger *zap.SugaredLogger
}

func NewRunner(logger *zap.SugaredLogger, dryRun, paranoid bool) *Runner {
	return &Runner{DryRun: dryRun, Paranoid: paranoid, logger: logger}
}

// Run executes one spec. A failing or timed-out command is reported in
// the Outcome, never as an error: collection is best effort and the
// caller records degraded data instead of aborting.
func (r *Runner) Run(ctx context.Context, spec Spec) (Outcome, error) {
	start := time.Now()

	if r.DryRun {
		if err := os.WriteFile(spec.OutputPath, []byte(placeholder), 0o600); err != nil {
			return Outcome{}, fmt.Errorf("write placeholder: %w", err)
		}
		return Outcome{Succeeded: true, ProducedOutput: true, Duration: time.Since(start)}, nil
	}

	out, err := os.OpenFile(spec.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Outcome{}, fmt.Errorf("create artifact %s: %w", spec.OutputPath, err)
	}
	defer out.Close()

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", spec.Command)
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// A shell that ignores SIGKILL delivery to its children must not
	// wedge Wait forever.
	cmd.WaitDelay = 5 * time.Second
	if r.Paranoid {
		cmd.Env = paranoidEnv
	}

	runErr := cmd.Run()
	outcome := Outcome{
		Succeeded: runErr == nil,
		TimedOut:  runCtx.Err() == context.DeadlineExceeded,
		Duration:  time.Since(start),
	}
	if info, statErr := os.Stat(spec.OutputPath); statErr == nil && info.Size() > 0 {
		outcome.ProducedOutput = true
	}
	if runErr != nil && stderr.Len() > 0 {
		r.logger.Debugw("capture stderr",
			"artifact", filepath.Base(spec.OutputPath),
			"stderr", stderr.String())
	}
	return outcome, nil
}

// IsPlaceholder reports whether data is the dry-run placeholder body.
func IsPlaceholder(data []byte) bool {
	return string(data) == placeholder
}
