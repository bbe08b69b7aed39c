package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipsix/hostsweep/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sweep runs from the catalog",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := resolveConfig(cmd, nil)
	if err != nil {
		return err
	}
	defer logger.Sync()

	catalog, err := history.Open(cfg.ReportDir)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer catalog.Close()

	records, err := catalog.List()
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	fmt.Printf("%-25s %-30s %5s %9s %8s\n", "TIME", "RUN", "RISK", "ARCHIVED", "RUNTIME")
	for _, rec := range records {
		fmt.Printf("%-25s %-30s %5d %9v %7.1fs\n",
			rec.Timestamp.Format(time.RFC3339),
			rec.RunID,
			rec.RiskScore,
			rec.Archived,
			rec.RuntimeSeconds)
	}
	return nil
}
