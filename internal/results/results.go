// Package results persists per-split metric and importance records as
// append-only JSONL files, one pair of files per dataset label. Appending
// keeps resumed runs cheap: a rerun with a later start split adds records
// without touching earlier ones, and the aggregator deduplicates on read.
package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/graftlab/survbench/internal/models"
)

// Store reads and writes records under a single directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// AppendBundles appends every metric and importance record from the bundles.
func (s *Store) AppendBundles(label string, bundles []models.ResultBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metrics []any
	var importances []any
	for _, b := range bundles {
		for _, m := range b.Metrics {
			metrics = append(metrics, m)
		}
		for _, imp := range b.Importances {
			importances = append(importances, imp)
		}
	}
	if err := appendLines(s.metricsPath(label), metrics); err != nil {
		return err
	}
	return appendLines(s.importancePath(label), importances)
}

// LoadMetrics returns every metric record recorded for the label, in append
// order. A missing file means no records, not an error.
func (s *Store) LoadMetrics(label string) ([]models.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadLines[models.MetricRecord](s.metricsPath(label))
}

// LoadImportances returns every importance record recorded for the label.
func (s *Store) LoadImportances(label string) ([]models.ImportanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadLines[models.ImportanceRecord](s.importancePath(label))
}

func (s *Store) metricsPath(label string) string {
	return filepath.Join(s.dir, sanitize(label)+".metrics.jsonl")
}

func (s *Store) importancePath(label string) string {
	return filepath.Join(s.dir, sanitize(label)+".importance.jsonl")
}

// sanitize keeps labels filesystem-safe.
func sanitize(label string) string {
	if label == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, label)
}

func appendLines(path string, records []any) error {
	if len(records) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("encoding record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}

func loadLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return out, nil
}
