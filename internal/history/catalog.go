package history

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// CatalogDirName is the catalog's location inside the report root. The
// engine keeps no state outside the report and baseline directories.
const CatalogDirName = ".catalog"

// Record is one finished sweep as remembered by the catalog: enough to
// answer "what did recent runs look like" without reopening reports.
type Record struct {
	RunID          string         `json:"run_id"`
	Host           string         `json:"host"`
	Timestamp      time.Time      `json:"timestamp"`
	RunPath        string         `json:"run_path"`
	RiskScore      int            `json:"risk_score"`
	Counts         map[string]int `json:"counts"`
	Archived       bool           `json:"archived"`
	RuntimeSeconds float64        `json:"runtime_seconds"`
}

type Catalog struct {
	store Store
}

// Open opens the run catalog inside reportRoot.
func Open(reportRoot string) (*Catalog, error) {
	store, err := NewBadgerStore(filepath.Join(reportRoot, CatalogDirName))
	if err != nil {
		return nil, err
	}
	return &Catalog{store: store}, nil
}

func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

func (c *Catalog) Close() error {
	return c.store.Close()
}

func (c *Catalog) Record(rec Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	key := fmt.Sprintf("%s-%s", rec.Timestamp.UTC().Format("20060102150405"), rec.RunID)
	return c.store.Put(key, raw)
}

// List returns every record, newest first.
func (c *Catalog) List() ([]Record, error) {
	records := []Record{}
	err := c.store.ForEach(func(_ string, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// PruneOlderThan drops records whose run finished before cutoff and
// returns how many were removed. The reports themselves are untouched.
func (c *Catalog) PruneOlderThan(cutoff time.Time) (int, error) {
	stale := []string{}
	err := c.store.ForEach(func(key string, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		if rec.Timestamp.Before(cutoff) {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := c.store.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
