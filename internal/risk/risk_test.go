package risk

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScoreWeights(t *testing.T) {
	cases := []struct {
		name     string
		counts   Counts
		paranoid bool
		want     int
	}{
		{"clean", Counts{}, false, 0},
		{"suspicious processes", Counts{SuspiciousProcesses: 1}, false, 25},
		{"one uncommon connection is routine", Counts{UncommonEstablished: 1}, false, 0},
		{"two uncommon connections", Counts{UncommonEstablished: 2}, false, 10},
		{"recent executables", Counts{RecentExecutables: 3}, false, 20},
		{"baseline drift", Counts{NonEmptyDiffs: 1}, false, 15},
		{"integrity ignored outside paranoid", Counts{IntegrityFindings: 5}, false, 0},
		{"integrity counted in paranoid", Counts{IntegrityFindings: 5}, true, 10},
		{"home files carry no weight", Counts{RecentHomeFiles: 40}, false, 0},
		{
			"everything fires",
			Counts{
				SuspiciousProcesses: 2,
				UncommonEstablished: 9,
				RecentExecutables:   1,
				NonEmptyDiffs:       4,
				IntegrityFindings:   1,
			},
			true,
			80,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.counts, tc.paranoid); got != tc.want {
				t.Fatalf("Score(%+v, %v) = %d, want %d", tc.counts, tc.paranoid, got, tc.want)
			}
		})
	}
}

func TestScoreBounds(t *testing.T) {
	huge := Counts{
		SuspiciousProcesses: 1 << 20,
		UncommonEstablished: 1 << 20,
		RecentExecutables:   1 << 20,
		NonEmptyDiffs:       1 << 20,
		IntegrityFindings:   1 << 20,
	}
	for _, paranoid := range []bool{false, true} {
		got := Score(huge, paranoid)
		if got < 0 || got > 100 {
			t.Fatalf("score %d outside [0,100]", got)
		}
	}
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "lines.txt")
	body := "one\n\n  \ntwo\nthree\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := CountLines(path); got != 3 {
		t.Fatalf("expected 3 non-blank lines, got %d", got)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := CountLines(empty); got != 0 {
		t.Fatalf("expected 0 for empty file, got %d", got)
	}

	if got := CountLines(filepath.Join(dir, "missing.txt")); got != 0 {
		t.Fatalf("expected 0 for missing file, got %d", got)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	susp := filepath.Join(dir, "suspicious.txt")
	if err := os.WriteFile(susp, []byte("kworkerd [deleted]\nxmrig\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	counts := Collect(map[Signal]string{
		SignalSuspiciousProcesses: susp,
		SignalRecentExecutables:   filepath.Join(dir, "missing.txt"),
	}, 2)

	if counts.SuspiciousProcesses != 2 {
		t.Fatalf("expected 2 suspicious, got %d", counts.SuspiciousProcesses)
	}
	if counts.RecentExecutables != 0 {
		t.Fatalf("missing artifact must count zero, got %d", counts.RecentExecutables)
	}
	if counts.NonEmptyDiffs != 2 {
		t.Fatalf("expected diff count carried through, got %d", counts.NonEmptyDiffs)
	}
}
