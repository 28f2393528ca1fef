// Package partition produces the reusable train/test splits that drive the
// Monte Carlo cross-validation loop. Splits store row identifiers, not
// positions, so the same split list can be remapped onto filtered cohort
// variants for paired comparison.
package partition

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/graftlab/survbench/internal/dataset"
)

// DefaultTrainFraction is the share of each stratum assigned to training.
const DefaultTrainFraction = 0.75

// Split is one immutable train/test partition of a dataset's row IDs.
// Train and test are disjoint; together they need not cover the dataset.
type Split struct {
	ID       int
	TrainIDs []string
	TestIDs  []string
}

// GenerateSplits creates nReps stratified Monte Carlo splits. Stratification
// uses strataColumn (normally the event indicator) so each split roughly
// preserves the global event rate; a missing strata column downgrades to
// unstratified sampling with a warning, it is not fatal.
func GenerateSplits(ds *dataset.Dataset, nReps int, trainFraction float64, strataColumn string, seed int64) ([]Split, error) {
	if nReps <= 0 {
		return nil, fmt.Errorf("partition: repetitions must be positive, got %d", nReps)
	}
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, fmt.Errorf("partition: train fraction must be in (0,1), got %v", trainFraction)
	}
	if ds.Frame.Len() < 2 {
		return nil, fmt.Errorf("partition: dataset %q has %d rows, need at least 2", ds.Label, ds.Frame.Len())
	}

	strata := strataIndices(ds, strataColumn)
	rng := rand.New(rand.NewSource(seed))

	splits := make([]Split, 0, nReps)
	for rep := 1; rep <= nReps; rep++ {
		var trainIdx, testIdx []int
		for _, stratum := range strata {
			shuffled := make([]int, len(stratum))
			copy(shuffled, stratum)
			rng.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			cut := int(float64(len(shuffled)) * trainFraction)
			if cut == 0 && len(shuffled) > 1 {
				cut = 1
			}
			trainIdx = append(trainIdx, shuffled[:cut]...)
			testIdx = append(testIdx, shuffled[cut:]...)
		}
		splits = append(splits, Split{
			ID:       rep,
			TrainIDs: idsAt(ds.Frame, trainIdx),
			TestIDs:  idsAt(ds.Frame, testIdx),
		})
	}

	if len(splits) == 0 {
		return nil, fmt.Errorf("partition: no splits generated for dataset %q", ds.Label)
	}
	return splits, nil
}

// RemapSplits projects a base split list (as lists of test-row identifiers)
// onto a filtered cohort. The train set of each remapped split is the target
// cohort minus the remapped test set, so train and test stay disjoint. Splits
// whose remapped test set has fewer than minTestRows rows or fewer than
// minTestEvents events (at least one, always) are dropped; the dropped count
// is returned and logged. A target without a row-identifier column is fatal:
// paired comparison cannot be guaranteed without stable IDs.
func RemapSplits(baseTestIDs [][]string, target *dataset.Dataset, minTestRows, minTestEvents int) ([]Split, int, error) {
	if target.IDColumn == "" {
		return nil, 0, fmt.Errorf("partition: %w: target %q has no row-identifier column", dataset.ErrMissingColumn, target.Label)
	}
	if minTestEvents < 1 {
		minTestEvents = 1
	}

	byID := target.Frame.IndexByID()
	status := target.Status()

	splits := make([]Split, 0, len(baseTestIDs))
	dropped := 0
	for i, base := range baseTestIDs {
		test := make([]string, 0, len(base))
		inTest := make(map[string]bool, len(base))
		events := 0
		for _, id := range base {
			row, ok := byID[id]
			if !ok {
				continue
			}
			test = append(test, id)
			inTest[id] = true
			if status[row] == 1 {
				events++
			}
		}
		if len(test) < minTestRows || events < minTestEvents {
			dropped++
			slog.Debug("remap: dropping split",
				"dataset", target.Label, "split", i+1,
				"test_rows", len(test), "test_events", events)
			continue
		}
		train := make([]string, 0, target.Frame.Len()-len(test))
		for _, id := range target.Frame.IDs {
			if !inTest[id] {
				train = append(train, id)
			}
		}
		splits = append(splits, Split{ID: i + 1, TrainIDs: train, TestIDs: test})
	}

	if dropped > 0 {
		slog.Warn("remap: splits dropped below minimum test size",
			"dataset", target.Label, "dropped", dropped, "kept", len(splits),
			"min_test_rows", minTestRows, "min_test_events", minTestEvents)
	}
	return splits, dropped, nil
}

func strataIndices(ds *dataset.Dataset, strataColumn string) [][]int {
	n := ds.Frame.Len()
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	if strataColumn == "" {
		return [][]int{all}
	}
	col, ok := ds.Frame.Numeric[strataColumn]
	if !ok {
		slog.Warn("partition: strata column absent, sampling unstratified",
			"dataset", ds.Label, "column", strataColumn)
		return [][]int{all}
	}

	var events, rest []int
	for i, v := range col {
		if v == 1 {
			events = append(events, i)
		} else {
			rest = append(rest, i)
		}
	}
	if len(events) == 0 || len(rest) == 0 {
		return [][]int{all}
	}
	return [][]int{events, rest}
}

func idsAt(f *dataset.Frame, rows []int) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = f.IDs[r]
	}
	return ids
}
