package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ipsix/hostsweep/internal/baseline"
	"github.com/ipsix/hostsweep/internal/history"
)

var baselineRunID string

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage the trusted-state baseline",
}

var baselineSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Capture a run's curated artifacts as the new baseline",
	Args:  cobra.NoArgs,
	RunE:  runBaselineSave,
}

var baselineCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Diff a run against the saved baseline",
	Args:  cobra.NoArgs,
	RunE:  runBaselineCompare,
}

func init() {
	baselineCmd.PersistentFlags().StringVar(&baselineRunID, "run", "latest", "run id under the report root, or 'latest'")
	baselineCmd.AddCommand(baselineSaveCmd)
	baselineCmd.AddCommand(baselineCompareCmd)
}

func runBaselineSave(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := resolveConfig(cmd, nil)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runDir, err := findRunDir(cfg.ReportDir, baselineRunID)
	if err != nil {
		return err
	}
	saved, err := baseline.Save(runDir, cfg.BaselineDir, cfg.Paranoid, logger)
	if err != nil {
		return err
	}
	logger.Infow("baseline saved",
		"run", filepath.Base(runDir), "dir", cfg.BaselineDir, "artifacts", len(saved))
	for _, name := range saved {
		fmt.Println(name)
	}
	return nil
}

func runBaselineCompare(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := resolveConfig(cmd, nil)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if _, err := os.Stat(cfg.BaselineDir); err != nil {
		return fmt.Errorf("no baseline at %s, run 'hostsweep baseline save' first", cfg.BaselineDir)
	}
	runDir, err := findRunDir(cfg.ReportDir, baselineRunID)
	if err != nil {
		return err
	}
	diffs, err := baseline.Compare(runDir, cfg.BaselineDir, cfg.Paranoid, logger)
	if err != nil {
		return err
	}
	for _, d := range diffs {
		switch {
		case d.Missing:
			fmt.Printf("%-45s no baseline counterpart\n", d.Name)
		case d.Lines > 0:
			fmt.Printf("%-45s drift (%d diff lines) -> %s\n", d.Name, d.Lines, d.Path)
		default:
			fmt.Printf("%-45s clean\n", d.Name)
		}
	}
	if n := baseline.NonEmpty(diffs); n > 0 {
		logger.Warnw("baseline drift detected", "artifacts", n)
	}
	return nil
}

// findRunDir resolves a run id (or "latest") to its directory under the
// report root. Run ids sort by their embedded timestamp.
func findRunDir(reportRoot, runID string) (string, error) {
	if runID != "latest" {
		dir := filepath.Join(reportRoot, runID)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", fmt.Errorf("run %s not found under %s", runID, reportRoot)
		}
		return dir, nil
	}

	entries, err := os.ReadDir(reportRoot)
	if err != nil {
		return "", fmt.Errorf("read report root: %w", err)
	}
	runs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == history.CatalogDirName || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		runs = append(runs, entry.Name())
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs under %s", reportRoot)
	}
	sort.Strings(runs)
	return filepath.Join(reportRoot, runs[len(runs)-1]), nil
}
