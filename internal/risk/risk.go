package risk

import (
	"bufio"
	"os"
	"strings"
)

// Signal names one scored evidence category. The runner maps each
// signal to the artifact its count is read from.
type Signal string

const (
	SignalSuspiciousProcesses Signal = "suspicious_process_matches"
	SignalRecentExecutables   Signal = "recent_system_executables"
	SignalRecentHomeFiles     Signal = "recent_home_files"
	SignalUncommonEstablished Signal = "uncommon_established_connections"
	SignalIntegrityFindings   Signal = "integrity_findings"
	SignalNonEmptyDiffs       Signal = "non_empty_baseline_diffs"
)

// Counts carries the per-signal line counts extracted from a run's
// artifacts. A failed or empty artifact contributes zero.
type Counts struct {
	SuspiciousProcesses int
	RecentExecutables   int
	RecentHomeFiles     int
	UncommonEstablished int
	NonEmptyDiffs       int
	IntegrityFindings   int
}

func (c *Counts) Set(sig Signal, n int) {
	switch sig {
	case SignalSuspiciousProcesses:
		c.SuspiciousProcesses = n
	case SignalRecentExecutables:
		c.RecentExecutables = n
	case SignalRecentHomeFiles:
		c.RecentHomeFiles = n
	case SignalUncommonEstablished:
		c.UncommonEstablished = n
	case SignalIntegrityFindings:
		c.IntegrityFindings = n
	case SignalNonEmptyDiffs:
		c.NonEmptyDiffs = n
	}
}

func (c Counts) Map() map[string]int {
	return map[string]int{
		string(SignalSuspiciousProcesses): c.SuspiciousProcesses,
		string(SignalRecentExecutables):   c.RecentExecutables,
		string(SignalRecentHomeFiles):     c.RecentHomeFiles,
		string(SignalUncommonEstablished): c.UncommonEstablished,
		string(SignalNonEmptyDiffs):       c.NonEmptyDiffs,
		string(SignalIntegrityFindings):   c.IntegrityFindings,
	}
}

// Score is the deterministic risk function. Each signal adds a fixed
// weight once its count crosses its threshold; nothing ever subtracts.
// Uncommon established connections only count past one, a single such
// connection is routine. Integrity findings count only in paranoid mode
// because the producing tasks only run there. The sum clamps to 100.
func Score(c Counts, paranoid bool) int {
	score := 0
	if c.SuspiciousProcesses > 0 {
		score += 25
	}
	if c.UncommonEstablished > 1 {
		score += 10
	}
	if c.RecentExecutables > 0 {
		score += 20
	}
	if c.NonEmptyDiffs > 0 {
		score += 15
	}
	if paranoid && c.IntegrityFindings > 0 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// CountLines returns the number of non-blank lines in path. A missing
// or unreadable artifact counts as zero; the runner already logged the
// gap.
func CountLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n
}

// Collect extracts the signal counts from a run's artifacts. artifacts
// maps each signal to the absolute path of its producing artifact;
// diffs is the non-empty baseline diff count supplied by the compare
// pass.
func Collect(artifacts map[Signal]string, diffs int) Counts {
	var c Counts
	for sig, path := range artifacts {
		c.Set(sig, CountLines(path))
	}
	c.NonEmptyDiffs = diffs
	return c
}
