// Package progress persists run progress to a small JSON file that external
// monitors can poll. Every write goes through a temp file and an atomic
// rename, so a reader never observes a partially written snapshot.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/graftlab/survbench/internal/engine"
)

// rollingWindow bounds how many recent split durations feed the ETA.
const rollingWindow = 10

// Snapshot is the on-disk progress record.
type Snapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	Dataset     string    `json:"dataset"`
	Step        string    `json:"step"`
	Done        int       `json:"done"`
	Total       int       `json:"total"`
	Percent     float64   `json:"percent"`
	ElapsedSec  float64   `json:"elapsed_sec"`
	AvgSplitSec float64   `json:"avg_split_sec"`
	ETASec      float64   `json:"eta_sec"`
}

// Reporter turns scheduler progress events into snapshot writes.
type Reporter struct {
	path string

	mu        sync.Mutex
	start     time.Time
	durations []float64
	now       func() time.Time
}

// NewReporter writes snapshots to path. The parent directory must exist.
func NewReporter(path string) *Reporter {
	return &Reporter{path: path, now: time.Now}
}

// Listener adapts the reporter to the scheduler's callback shape.
func (r *Reporter) Listener() engine.ProgressListener {
	return func(ev engine.ProgressEvent) {
		if err := r.observe(ev); err != nil {
			// progress is advisory; a failed write never stops the run
			fmt.Fprintf(os.Stderr, "progress: %v\n", err)
		}
	}
}

func (r *Reporter) observe(ev engine.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	switch ev.EventType {
	case engine.EventRunStart:
		r.start = now
		r.durations = r.durations[:0]
	case engine.EventSplitComplete, engine.EventSplitSkipped:
		r.durations = append(r.durations, float64(ev.DurationMs)/1000)
		if len(r.durations) > rollingWindow {
			r.durations = r.durations[len(r.durations)-rollingWindow:]
		}
	}

	snap := Snapshot{
		Timestamp: now,
		Dataset:   ev.Dataset,
		Step:      step(ev),
		Done:      ev.Done,
		Total:     ev.Total,
	}
	if ev.Total > 0 {
		snap.Percent = 100 * float64(ev.Done) / float64(ev.Total)
	}
	if !r.start.IsZero() {
		snap.ElapsedSec = now.Sub(r.start).Seconds()
	}
	if len(r.durations) > 0 {
		var sum float64
		for _, d := range r.durations {
			sum += d
		}
		snap.AvgSplitSec = sum / float64(len(r.durations))
		snap.ETASec = snap.AvgSplitSec * float64(ev.Total-ev.Done)
	}

	return writeAtomic(r.path, &snap)
}

func step(ev engine.ProgressEvent) string {
	switch ev.EventType {
	case engine.EventRunStart:
		return "starting"
	case engine.EventRunComplete:
		return "complete"
	case engine.EventSplitSkipped:
		return fmt.Sprintf("split %d skipped (%s)", ev.SplitID, ev.Note)
	default:
		return fmt.Sprintf("split %d", ev.SplitID)
	}
}

// writeAtomic serializes the snapshot next to its destination and renames it
// into place. Rename within one directory is atomic on POSIX filesystems.
func writeAtomic(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".progress-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// Read loads the most recent snapshot from path.
func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading progress file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing progress file: %w", err)
	}
	return &snap, nil
}
