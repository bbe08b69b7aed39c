package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ipsix/hostsweep/internal/config"
	"github.com/ipsix/hostsweep/internal/logging"
)

var (
	configPath string
	debugMode  bool

	// exitCode carries the sweep exit contract (0/1/2) out of cobra.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:           "hostsweep",
	Short:         "Periodic host security sweep",
	Long:          "hostsweep gathers point-in-time host telemetry, scores it for risk, compares it against a trusted baseline and notifies operators when risk crosses a threshold.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to KEY=VALUE config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "verbose development logging")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(versionCmd)
}

func execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hostsweep:", err)
		return 1
	}
	return exitCode
}

// resolveConfig merges defaults, file, environment and the given
// explicit flag overrides, then builds the logger the resolved config
// asks for. Resolution warnings surface through that logger.
func resolveConfig(cmd *cobra.Command, overrides map[string]string) (config.Config, *zap.SugaredLogger, error) {
	path := configPath
	explicit := cmd.Flags().Changed("config")
	if path == "" {
		path = config.DefaultPath
	}

	cfg, warnings, err := config.Resolve(path, explicit, os.Environ(), overrides)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(cfg.LogFormat, debugMode)
	if err != nil {
		return config.Config{}, nil, err
	}
	for _, w := range warnings {
		logger.Warnw("config warning", "detail", w)
	}
	return cfg, logger, nil
}
