package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// SchemaVersion identifies the machine-readable summary layout. Bump it
// when a field changes meaning, never reuse it.
const SchemaVersion = "hostsweep/v1"

const (
	summaryJSONName = "summary.json"
	summaryTextName = "summary.txt"
)

// Summary is the machine-readable run summary. The same value feeds the
// webhook body, the history catalog, and the central-collector log line.
type Summary struct {
	Schema         string         `json:"schema"`
	Version        string         `json:"version"`
	Host           string         `json:"host"`
	Timestamp      time.Time      `json:"timestamp"`
	RunPath        string         `json:"run_path"`
	LookbackHours  int            `json:"lookback_hours"`
	Paranoid       bool           `json:"paranoid"`
	Parallel       bool           `json:"parallel"`
	DryRun         bool           `json:"dry_run"`
	RuntimeSeconds float64        `json:"runtime_seconds"`
	MemoryDeltaMB  float64        `json:"memory_delta_mb"`
	CommonPorts    string         `json:"common_ports"`
	Counts         map[string]int `json:"counts"`
	RiskScore      int            `json:"risk_score"`
	Archived       bool           `json:"archived"`
}

// WriteSummaries produces both summary artifacts: summary.json for
// machines and summary.txt for the operator reading the report.
func (r *Run) WriteSummaries(s Summary) error {
	s.Schema = SchemaVersion
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(r.ArtifactPath(summaryJSONName), append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", summaryJSONName, err)
	}
	if err := os.WriteFile(r.ArtifactPath(summaryTextName), []byte(humanSummary(s)), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", summaryTextName, err)
	}
	return nil
}

// ReadSummary loads the machine summary back from a finished run.
func (r *Run) ReadSummary() (Summary, error) {
	raw, err := os.ReadFile(r.ArtifactPath(summaryJSONName))
	if err != nil {
		return Summary{}, fmt.Errorf("read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}

// SummaryJSON returns the raw machine summary bytes, the exact body
// posted to the webhook.
func (r *Run) SummaryJSON() ([]byte, error) {
	return os.ReadFile(r.ArtifactPath(summaryJSONName))
}

// SetArchived rewrites the archived flag after the archive attempt and
// appends the result to the human summary.
func (r *Run) SetArchived(ok bool) error {
	s, err := r.ReadSummary()
	if err != nil {
		return err
	}
	s.Archived = ok
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(r.ArtifactPath(summaryJSONName), append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", summaryJSONName, err)
	}

	line := "archive: failed\n"
	if ok {
		line = "archive: ok\n"
	}
	f, err := os.OpenFile(r.ArtifactPath(summaryTextName), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("append %s: %w", summaryTextName, err)
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

func humanSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "hostsweep %s run summary\n", s.Version)
	fmt.Fprintf(&b, "host:            %s\n", s.Host)
	fmt.Fprintf(&b, "timestamp:       %s\n", s.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "run path:        %s\n", s.RunPath)
	fmt.Fprintf(&b, "lookback hours:  %d\n", s.LookbackHours)
	fmt.Fprintf(&b, "paranoid:        %v\n", s.Paranoid)
	fmt.Fprintf(&b, "parallel:        %v\n", s.Parallel)
	if s.DryRun {
		fmt.Fprintf(&b, "mode:            dry-run (no commands executed)\n")
	}
	fmt.Fprintf(&b, "runtime:         %.1fs\n", s.RuntimeSeconds)
	fmt.Fprintf(&b, "memory delta:    %.1f MB\n", s.MemoryDeltaMB)
	fmt.Fprintf(&b, "common ports:    %s\n", s.CommonPorts)
	fmt.Fprintf(&b, "risk score:      %d\n", s.RiskScore)

	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "count %-38s %d\n", k+":", s.Counts[k])
	}
	return b.String()
}
