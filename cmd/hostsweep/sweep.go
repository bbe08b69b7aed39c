package main

import (
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ipsix/hostsweep/internal/sweep"
)

var (
	sweepLookback      int
	sweepParallel      bool
	sweepParanoid      bool
	sweepDryRun        bool
	sweepNoCompare     bool
	sweepSaveBaseline  bool
	sweepReportDir     string
	sweepBaselineDir   string
	sweepNotifyAt      int
	sweepHighRiskAt    int
	sweepWebhookURL    string
	sweepNoRequireRoot bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one complete security sweep",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	flags := sweepCmd.Flags()
	flags.IntVar(&sweepLookback, "lookback", 24, "lookback window in hours")
	flags.BoolVar(&sweepParallel, "parallel", true, "run parallel-eligible tasks concurrently")
	flags.BoolVar(&sweepParanoid, "paranoid", false, "enable slower integrity-focused tasks")
	flags.BoolVar(&sweepDryRun, "dry-run", false, "write placeholders instead of executing commands")
	flags.BoolVar(&sweepNoCompare, "no-compare", false, "skip the baseline comparison")
	flags.BoolVar(&sweepSaveBaseline, "save-baseline", false, "save this run's curated artifacts as the new baseline")
	flags.StringVar(&sweepReportDir, "report-dir", "", "report root directory")
	flags.StringVar(&sweepBaselineDir, "baseline-dir", "", "baseline directory")
	flags.IntVar(&sweepNotifyAt, "notify-threshold", 40, "risk score that triggers notification")
	flags.IntVar(&sweepHighRiskAt, "high-risk-threshold", 50, "risk score that exits 2")
	flags.StringVar(&sweepWebhookURL, "webhook-url", "", "webhook endpoint for the machine summary")
	flags.BoolVar(&sweepNoRequireRoot, "no-require-root", false, "allow running without root privileges")
}

// sweepOverrides maps only the flags the operator actually set into the
// resolver's highest-precedence layer.
func sweepOverrides(cmd *cobra.Command) map[string]string {
	overrides := map[string]string{}
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("lookback", "LOOKBACK_HOURS", strconv.Itoa(sweepLookback))
	set("parallel", "PARALLEL", strconv.FormatBool(sweepParallel))
	set("paranoid", "PARANOID", strconv.FormatBool(sweepParanoid))
	set("report-dir", "REPORT_DIR", sweepReportDir)
	set("baseline-dir", "BASELINE_DIR", sweepBaselineDir)
	set("notify-threshold", "NOTIFY_THRESHOLD", strconv.Itoa(sweepNotifyAt))
	set("high-risk-threshold", "HIGH_RISK_THRESHOLD", strconv.Itoa(sweepHighRiskAt))
	set("webhook-url", "WEBHOOK_URL", sweepWebhookURL)
	if cmd.Flags().Changed("no-require-root") {
		overrides["REQUIRE_ROOT"] = strconv.FormatBool(!sweepNoRequireRoot)
	}
	return overrides
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := resolveConfig(cmd, sweepOverrides(cmd))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := sweep.New(cfg, logger).Run(ctx, sweep.Options{
		DryRun:       sweepDryRun,
		SkipCompare:  sweepNoCompare,
		SaveBaseline: sweepSaveBaseline,
	})
	if err != nil {
		return err
	}
	logger.Infow("sweep finished", "outcome", outcome.String(), "exit_code", outcome.ExitCode())
	exitCode = outcome.ExitCode()
	return nil
}
