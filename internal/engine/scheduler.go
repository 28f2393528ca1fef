// Package engine contains the Monte Carlo cross-validation core: the split
// worker that evaluates every model family on one split, and the scheduler
// that fans workers out over a bounded pool with resume and timeout support.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graftlab/survbench/internal/adapters"
	"github.com/graftlab/survbench/internal/dataset"
	"github.com/graftlab/survbench/internal/models"
	"github.com/graftlab/survbench/internal/partition"
	"github.com/graftlab/survbench/internal/recipe"
)

// Scheduler runs split workers over a bounded pool. Construct with
// NewScheduler; the configuration is fixed afterwards.
type Scheduler struct {
	cfg      Config
	worker   *worker
	notifier notifier
}

// NewScheduler validates the configuration, clamps the thread budget and
// binds the read-only inputs every worker shares.
func NewScheduler(cfg Config, ds *dataset.Dataset, features []string, registry []adapters.ModelAdapter, rec recipe.Recipe) (*Scheduler, error) {
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if len(registry) == 0 {
		return nil, fmt.Errorf("engine: no model adapters registered")
	}
	if len(features) == 0 {
		features = ds.FeatureColumns()
	}
	if rec == nil {
		rec = recipe.Impute{}
	}

	cfg = cfg.withDefaults().clampThreadBudget()
	if cfg.DatasetLabel == "" {
		cfg.DatasetLabel = ds.Label
	}

	return &Scheduler{
		cfg: cfg,
		worker: &worker{
			cfg:      cfg,
			ds:       ds,
			features: features,
			registry: registry,
			rec:      rec,
		},
	}, nil
}

// OnProgress registers a progress listener.
func (s *Scheduler) OnProgress(l ProgressListener) { s.notifier.on(l) }

// Config returns the effective configuration after defaulting and clamping.
func (s *Scheduler) Config() Config { return s.cfg }

// Run executes the configured sub-range of splits and returns the collected
// bundles sorted by split id. Bundles arrive keyed by split id, so the
// output is deterministic regardless of scheduling order. A timed-out split
// is reported as skipped and omitted; it is not retried within the run
// (re-running with StartAt is the recovery path).
func (s *Scheduler) Run(ctx context.Context, splits []partition.Split) ([]models.ResultBundle, error) {
	if len(splits) == 0 {
		return nil, fmt.Errorf("engine: no splits to run")
	}

	selected := s.selectRange(splits)
	if len(selected) == 0 {
		return nil, fmt.Errorf("engine: resume range start_at=%d max_splits=%d selects no splits out of %d",
			s.cfg.StartAt, s.cfg.MaxSplits, len(splits))
	}

	total := len(selected)
	slog.Info("engine: starting run",
		"dataset", s.cfg.DatasetLabel, "splits", total,
		"workers", s.cfg.Workers, "threads_per_adapter", s.cfg.ThreadsPerAdapter,
		"start_at", s.cfg.StartAt)

	s.notifier.emit(ProgressEvent{
		EventType: EventRunStart, Dataset: s.cfg.DatasetLabel, Total: total,
	})

	start := time.Now()
	bundles := make([]*models.ResultBundle, total)
	var done atomic.Int64

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, split := range selected {
		g.Go(func() error {
			s.notifier.emit(ProgressEvent{
				EventType: EventSplitStart, Dataset: s.cfg.DatasetLabel,
				SplitID: split.ID, Done: int(done.Load()), Total: total,
			})

			splitStart := time.Now()
			bundle, err := s.runOne(groupCtx, split)
			elapsed := time.Since(splitStart).Milliseconds()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					// timeout: this split's results are unavailable, the
					// run continues
					slog.Warn("engine: split timed out",
						"dataset", s.cfg.DatasetLabel, "split", split.ID,
						"timeout", s.cfg.SplitTimeout)
					s.notifier.emit(ProgressEvent{
						EventType: EventSplitSkipped, Dataset: s.cfg.DatasetLabel,
						SplitID: split.ID, Done: int(done.Load()), Total: total,
						DurationMs: elapsed, Note: "timeout",
					})
					return nil
				}
				return fmt.Errorf("split %d: %w", split.ID, err)
			}

			bundles[i] = bundle
			n := int(done.Add(1))
			s.notifier.emit(ProgressEvent{
				EventType: EventSplitComplete, Dataset: s.cfg.DatasetLabel,
				SplitID: split.ID, Done: n, Total: total, DurationMs: elapsed,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.ResultBundle, 0, total)
	for _, b := range bundles {
		if b != nil {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Split < out[j].Split })

	s.notifier.emit(ProgressEvent{
		EventType: EventRunComplete, Dataset: s.cfg.DatasetLabel,
		Done: len(out), Total: total,
		DurationMs: time.Since(start).Milliseconds(),
	})
	slog.Info("engine: run complete",
		"dataset", s.cfg.DatasetLabel, "completed", len(out), "of", total,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

func (s *Scheduler) runOne(ctx context.Context, split partition.Split) (*models.ResultBundle, error) {
	if s.cfg.SplitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SplitTimeout)
		defer cancel()
	}
	bundle, err := s.worker.processSplit(ctx, split)
	// only an expired deadline counts as a split timeout; cancellation
	// (interrupt, sibling failure) propagates and aborts the run
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, context.DeadlineExceeded
	}
	return bundle, err
}

// selectRange applies the 1-based resume window to the split list.
func (s *Scheduler) selectRange(splits []partition.Split) []partition.Split {
	start := s.cfg.StartAt - 1
	if start >= len(splits) {
		return nil
	}
	end := len(splits)
	if s.cfg.MaxSplits > 0 && start+s.cfg.MaxSplits < end {
		end = start + s.cfg.MaxSplits
	}
	return splits[start:end]
}
