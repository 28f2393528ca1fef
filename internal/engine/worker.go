package engine

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"github.com/graftlab/survbench/internal/adapters"
	"github.com/graftlab/survbench/internal/dataset"
	"github.com/graftlab/survbench/internal/models"
	"github.com/graftlab/survbench/internal/partition"
	"github.com/graftlab/survbench/internal/recipe"
	"github.com/graftlab/survbench/internal/survival"
)

// worker is the unit of parallel work: it processes exactly one split at a
// time and shares no mutable state with other workers. The dataset, feature
// list, recipe and adapter registry it holds are read-only.
type worker struct {
	cfg      Config
	ds       *dataset.Dataset
	features []string
	registry []adapters.ModelAdapter
	rec      recipe.Recipe
}

// processSplit derives train/test frames, runs every registered adapter and
// returns the bundle of metric and importance records. A single model's
// failure is logged and skipped; only dataset-structural errors propagate.
func (w *worker) processSplit(ctx context.Context, split partition.Split) (*models.ResultBundle, error) {
	trainFrame := w.ds.Frame.Subset(split.TrainIDs)
	testFrame := w.ds.Frame.Subset(split.TestIDs)

	// recipe state comes from training rows only; applying it to test rows
	// with train statistics is what prevents leakage
	state, err := w.rec.Fit(trainFrame, w.features)
	if err != nil {
		return nil, err // missing feature column: structural, fatal
	}
	trainFrame, err = w.rec.Apply(state, trainFrame, w.features)
	if err != nil {
		return nil, err
	}
	testFrame, err = w.rec.Apply(state, testFrame, w.features)
	if err != nil {
		return nil, err
	}

	train := w.ds.View(trainFrame)
	test := w.ds.View(testFrame)

	bundle := &models.ResultBundle{Split: split.ID}

	for _, adapter := range w.registry {
		if batch, ok := adapter.(adapters.BatchScorer); ok {
			if err := w.runBatchAdapter(ctx, batch, adapter.Name(), train, test, split.ID, bundle); err != nil {
				return nil, err
			}
			continue
		}
		if err := w.runAdapter(ctx, adapter, train, test, split.ID, bundle); err != nil {
			return nil, err
		}
	}

	return bundle, nil
}

// runAdapter fits and scores one in-process model family, retrying once
// without the offending features after a constant-predictor rejection. A
// model failure downgrades to a skip; a cancelled or expired context
// propagates so the scheduler can account for the whole split.
func (w *worker) runAdapter(ctx context.Context, adapter adapters.ModelAdapter, train, test *dataset.Dataset, splitID int, bundle *models.ResultBundle) error {
	name := adapter.Name()
	features := w.features

	model, err := adapter.Fit(ctx, train, features)
	if dropped, ok := adapters.ConstantFeatures(err); ok {
		features = removeFeatures(features, dropped)
		slog.Info("worker: dropping constant predictors and retrying fit",
			"split", splitID, "model", name, "dropped", dropped)
		if bundle.DroppedFeatures == nil {
			bundle.DroppedFeatures = make(map[string][]string)
		}
		bundle.DroppedFeatures[name] = dropped
		model, err = adapter.Fit(ctx, train, features)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.skipModel(bundle, splitID, name, "fit", err)
		return nil
	}

	scores, err := adapter.Score(ctx, model, test, w.cfg.Horizon)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.skipModel(bundle, splitID, name, "score", err)
		return nil
	}

	baseline := w.appendMetrics(bundle, splitID, name, test, scores)

	if w.permutationEnabled(adapter) && !math.IsNaN(baseline) {
		w.permutationImportance(ctx, adapter, model, test, features, splitID, baseline, bundle)
	}
	return nil
}

// runBatchAdapter drives an adapter that scores during fit (external
// process). Its importance table, when present, is recorded as-is.
func (w *worker) runBatchAdapter(ctx context.Context, batch adapters.BatchScorer, name string, train, test *dataset.Dataset, splitID int, bundle *models.ResultBundle) error {
	scores, importance, err := batch.FitScore(ctx, train, test, w.features, w.cfg.Horizon)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.skipModel(bundle, splitID, name, "fit_score", err)
		return nil
	}

	w.appendMetrics(bundle, splitID, name, test, scores)

	for feature, value := range importance {
		bundle.Importances = append(bundle.Importances, models.ImportanceRecord{
			Dataset: w.cfg.DatasetLabel,
			Split:   splitID,
			Model:   name,
			Feature: feature,
			Value:   value,
		})
	}
	return nil
}

// appendMetrics computes both concordance variants and returns the primary
// metric value for permutation baselines.
func (w *worker) appendMetrics(bundle *models.ResultBundle, splitID int, name string, test *dataset.Dataset, scores []float64) float64 {
	times := test.Times()
	status := test.Status()

	harrell := survival.HarrellC(times, status, scores)
	uno, fallback := survival.UnoC(times, status, scores, w.cfg.Horizon)

	bundle.Metrics = append(bundle.Metrics,
		models.MetricRecord{
			Dataset: w.cfg.DatasetLabel, Split: splitID, Model: name,
			Metric: survival.MetricHarrellC, Value: harrell,
		},
		models.MetricRecord{
			Dataset: w.cfg.DatasetLabel, Split: splitID, Model: name,
			Metric: survival.MetricUnoC, Value: uno, Fallback: fallback,
		},
	)

	if w.cfg.PrimaryMetric == survival.MetricUnoC {
		return uno
	}
	return harrell
}

// permutationImportance shuffles one test column at a time, rescoring with
// the already fitted model. Importance is baseline minus permuted metric.
func (w *worker) permutationImportance(ctx context.Context, adapter adapters.ModelAdapter, model adapters.FittedModel, test *dataset.Dataset, features []string, splitID int, baseline float64, bundle *models.ResultBundle) {
	name := adapter.Name()
	topK := w.permutationTopK(adapter, len(features))
	if topK == 0 {
		slog.Debug("worker: permutation budget exhausted, skipping importance",
			"split", splitID, "model", name)
		return
	}

	// deterministic per (seed, split): reruns of a split reproduce the
	// same permutations
	rng := rand.New(rand.NewSource(w.cfg.Permutation.Seed + int64(splitID)))
	times := test.Times()
	status := test.Status()

	for _, feature := range features[:topK] {
		perm := rng.Perm(test.Frame.Len())
		shuffled, err := test.Frame.WithShuffledColumn(feature, perm)
		if err != nil {
			slog.Error("worker: permutation failed",
				"split", splitID, "model", name, "feature", feature, "err", err)
			continue
		}

		scores, err := adapter.Score(ctx, model, test.View(shuffled), w.cfg.Horizon)
		if err != nil {
			slog.Error("worker: permutation rescore failed",
				"split", splitID, "model", name, "feature", feature, "err", err)
			continue
		}

		permuted := survival.HarrellC(times, status, scores)
		if w.cfg.PrimaryMetric == survival.MetricUnoC {
			permuted, _ = survival.UnoC(times, status, scores, w.cfg.Horizon)
		}
		if math.IsNaN(permuted) {
			continue
		}

		bundle.Importances = append(bundle.Importances, models.ImportanceRecord{
			Dataset: w.cfg.DatasetLabel,
			Split:   splitID,
			Model:   name,
			Feature: feature,
			Value:   baseline - permuted,
		})
	}
}

// permutationTopK caps the feature count by config and, when the adapter
// advertises a unit cost, by the configured budget.
func (w *worker) permutationTopK(adapter adapters.ModelAdapter, nFeatures int) int {
	k := w.cfg.Permutation.TopK
	if k > nFeatures {
		k = nFeatures
	}
	if coster, ok := adapter.(adapters.PermutationCoster); ok && w.cfg.Permutation.Budget > 0 {
		affordable := int(w.cfg.Permutation.Budget / coster.PermutationUnitCost())
		if affordable < k {
			k = affordable
		}
	}
	if k < 0 {
		k = 0
	}
	return k
}

func (w *worker) permutationEnabled(adapter adapters.ModelAdapter) bool {
	return w.cfg.Permutation.Enabled && adapter.SupportsImportance()
}

func (w *worker) skipModel(bundle *models.ResultBundle, splitID int, name, phase string, err error) {
	slog.Error("worker: model skipped for split",
		"dataset", w.cfg.DatasetLabel, "split", splitID,
		"model", name, "phase", phase, "err", err)
	bundle.SkippedModels = append(bundle.SkippedModels, name)
}

func removeFeatures(features, drop []string) []string {
	dropSet := make(map[string]bool, len(drop))
	for _, f := range drop {
		dropSet[f] = true
	}
	out := make([]string, 0, len(features))
	for _, f := range features {
		if !dropSet[f] {
			out = append(out, f)
		}
	}
	return out
}
