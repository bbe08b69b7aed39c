package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ipsix/hostsweep/internal/schedule"
	"github.com/ipsix/hostsweep/internal/sweep"
)

var (
	scheduleCron       string
	scheduleRunOnStart bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sweeps periodically on a cron expression",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "0 3 * * *", "cron expression for sweep triggers")
	scheduleCmd.Flags().BoolVar(&scheduleRunOnStart, "run-on-start", false, "run one sweep immediately on startup")
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	_, logger, err := resolveConfig(cmd, nil)
	if err != nil {
		return err
	}
	defer logger.Sync()

	trigger := func(ctx context.Context) {
		// A sweep is point-in-time: re-resolve per trigger so config
		// edits take effect without restarting the daemon.
		runCfg, runLogger, err := resolveConfig(cmd, nil)
		if err != nil {
			logger.Errorw("config re-resolution failed", "error", err)
			return
		}
		outcome, err := sweep.New(runCfg, runLogger).Run(ctx, sweep.Options{})
		if err != nil {
			runLogger.Errorw("scheduled sweep failed", "error", err)
			return
		}
		runLogger.Infow("scheduled sweep finished", "outcome", outcome.String())
	}

	scheduler, err := schedule.New(logger, scheduleCron, scheduleRunOnStart, trigger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return scheduler.Run(ctx)
}
