package baseline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
)

// DiffDirName is the run subdirectory holding non-empty diff artifacts.
const DiffDirName = "baseline_diff"

// curated is the fixed artifact subset a baseline captures. These are
// the slow-moving trust indicators; everything else in a report is
// point-in-time noise that would only produce churn.
var curated = []string{
	"persistence/crontab-entries.txt",
	"persistence/enabled-units.txt",
	"persistence/systemd-timers.txt",
	"integrity/binary-hashes.txt",
}

var curatedParanoid = []string{
	"filesystem/suid-files.txt",
	"integrity/package-verify.txt",
}

// Curated returns the artifact subset captured and compared, relative
// to the run directory.
func Curated(paranoid bool) []string {
	if !paranoid {
		return append([]string(nil), curated...)
	}
	return append(append([]string(nil), curated...), curatedParanoid...)
}

// Save copies the curated artifacts from runDir into destDir,
// preserving owner-only permissions. A missing source artifact is
// skipped with a warning, never fatal. Baselines are operator-managed:
// nothing here prunes or expires them.
func Save(runDir, destDir string, paranoid bool, logger *zap.SugaredLogger) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return nil, fmt.Errorf("create baseline dir: %w", err)
	}

	saved := []string{}
	for _, name := range Curated(paranoid) {
		src := filepath.Join(runDir, name)
		raw, err := os.ReadFile(src)
		if err != nil {
			logger.Warnw("baseline source missing, skipped", "artifact", name)
			continue
		}
		dest := filepath.Join(destDir, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
			return saved, fmt.Errorf("create baseline category: %w", err)
		}
		if err := os.WriteFile(dest, raw, 0o600); err != nil {
			return saved, fmt.Errorf("write baseline %s: %w", name, err)
		}
		saved = append(saved, name)
	}
	return saved, nil
}

// Diff records the comparison outcome for one curated artifact. Missing
// marks a baseline gap: the current report has the artifact but the
// baseline never captured it. Lines is the unified-diff line count, 0
// when current and baseline match; Path is set only when a diff
// artifact was written.
type Diff struct {
	Name    string
	Path    string
	Lines   int
	Missing bool
}

// NonEmpty counts the diffs that produced a diff artifact. This is the
// scored baseline-drift signal.
func NonEmpty(diffs []Diff) int {
	n := 0
	for _, d := range diffs {
		if d.Lines > 0 {
			n++
		}
	}
	return n
}

// Compare diffs each curated artifact in runDir against its baseline
// counterpart. A differing pair writes a unified-diff artifact under
// runDir/baseline_diff; identical pairs write nothing; a missing
// baseline counterpart is a recorded gap, not an error.
func Compare(runDir, baselineDir string, paranoid bool, logger *zap.SugaredLogger) ([]Diff, error) {
	diffDir := filepath.Join(runDir, DiffDirName)
	diffs := []Diff{}

	for _, name := range Curated(paranoid) {
		current, err := os.ReadFile(filepath.Join(runDir, name))
		if err != nil {
			// Collection already logged the artifact gap.
			continue
		}
		base, err := os.ReadFile(filepath.Join(baselineDir, name))
		if err != nil {
			logger.Warnw("no baseline counterpart", "artifact", name)
			diffs = append(diffs, Diff{Name: name, Missing: true})
			continue
		}

		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(base)),
			B:        difflib.SplitLines(string(current)),
			FromFile: "baseline/" + name,
			ToFile:   "current/" + name,
			Context:  3,
		})
		if err != nil {
			return diffs, fmt.Errorf("diff %s: %w", name, err)
		}
		if text == "" {
			diffs = append(diffs, Diff{Name: name})
			continue
		}

		if err := os.MkdirAll(diffDir, 0o700); err != nil {
			return diffs, fmt.Errorf("create diff dir: %w", err)
		}
		path := filepath.Join(diffDir, flatten(name)+".diff")
		if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
			return diffs, fmt.Errorf("write diff %s: %w", name, err)
		}
		diffs = append(diffs, Diff{
			Name:  name,
			Path:  path,
			Lines: strings.Count(text, "\n"),
		})
	}
	return diffs, nil
}

func flatten(name string) string {
	return strings.ReplaceAll(strings.TrimSuffix(name, filepath.Ext(name)), "/", "_")
}
