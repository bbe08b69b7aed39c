package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store owns the on-disk report layout: one directory per run under
// Root, plus the archives produced from finished runs.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

// Run is one report in progress. The directory tree is created up
// front with owner-only access and is immutable once the run finishes.
type Run struct {
	ID        string
	Host      string
	Timestamp time.Time
	Dir       string
}

// CreateRun establishes the run directory and every category
// subdirectory, all mode 0700. Artifact files are written 0600 by their
// producers.
func (s *Store) CreateRun(host string, now time.Time, categories []string) (*Run, error) {
	id := fmt.Sprintf("%s-%s", host, now.UTC().Format("20060102-150405"))
	dir := filepath.Join(s.Root, id)

	if err := os.MkdirAll(s.Root, 0o700); err != nil {
		return nil, fmt.Errorf("create report root: %w", err)
	}
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	for _, cat := range categories {
		if err := os.Mkdir(filepath.Join(dir, cat), 0o700); err != nil {
			return nil, fmt.Errorf("create category %s: %w", cat, err)
		}
	}
	return &Run{ID: id, Host: host, Timestamp: now.UTC(), Dir: dir}, nil
}

// ArtifactPath resolves a run-relative artifact path like
// "network/established.txt" to its absolute location.
func (r *Run) ArtifactPath(rel string) string {
	return filepath.Join(r.Dir, rel)
}

// ArtifactFact reports the facts this layer knows about an artifact:
// whether it exists and its size. Content is never interpreted here.
type ArtifactFact struct {
	Name   string
	Exists bool
	Size   int64
}

func (r *Run) Stat(rel string) ArtifactFact {
	fact := ArtifactFact{Name: rel}
	info, err := os.Stat(r.ArtifactPath(rel))
	if err != nil {
		return fact
	}
	fact.Exists = true
	fact.Size = info.Size()
	return fact
}
