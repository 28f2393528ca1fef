package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlab/survbench/internal/dataset"
)

// synthCohort builds a dataset with n rows and the given event rate.
func synthCohort(n int, eventRate float64) *dataset.Dataset {
	ids := make([]string, n)
	times := make([]float64, n)
	status := make([]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("p%03d", i)
		times[i] = float64(i%40) + 1
		if float64(i) < eventRate*float64(n) {
			status[i] = 1
		}
	}
	return &dataset.Dataset{
		Label:        "synth",
		TimeColumn:   "months",
		StatusColumn: "event",
		IDColumn:     "pid",
		Frame: &dataset.Frame{
			IDs:     ids,
			Columns: []string{"months", "event"},
			Numeric: map[string][]float64{"months": times, "event": status},
			Factor:  map[string][]string{},
		},
	}
}

func TestGenerateSplitsDisjointAndStratified(t *testing.T) {
	ds := synthCohort(200, 0.3)
	splits, err := GenerateSplits(ds, 20, DefaultTrainFraction, "event", 7)
	require.NoError(t, err)
	require.Len(t, splits, 20)

	byID := ds.Frame.IndexByID()
	status := ds.Status()

	for _, s := range splits {
		seen := make(map[string]bool)
		for _, id := range s.TrainIDs {
			seen[id] = true
		}
		for _, id := range s.TestIDs {
			assert.False(t, seen[id], "split %d: id %s in both train and test", s.ID, id)
		}
		assert.Equal(t, ds.Frame.Len(), len(s.TrainIDs)+len(s.TestIDs))

		// stratification: event rate of each side close to the global 0.3
		for _, side := range [][]string{s.TrainIDs, s.TestIDs} {
			events := 0
			for _, id := range side {
				if status[byID[id]] == 1 {
					events++
				}
			}
			rate := float64(events) / float64(len(side))
			assert.InDelta(t, 0.3, rate, 0.05, "split %d event rate %v", s.ID, rate)
		}
	}
}

func TestGenerateSplitsDeterministicBySeed(t *testing.T) {
	ds := synthCohort(80, 0.25)
	a, err := GenerateSplits(ds, 5, 0.75, "event", 42)
	require.NoError(t, err)
	b, err := GenerateSplits(ds, 5, 0.75, "event", 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := GenerateSplits(ds, 5, 0.75, "event", 43)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerateSplitsMissingStrataColumnNotFatal(t *testing.T) {
	ds := synthCohort(50, 0.4)
	splits, err := GenerateSplits(ds, 3, 0.75, "no_such_column", 1)
	require.NoError(t, err)
	assert.Len(t, splits, 3)
}

func TestGenerateSplitsBadArgs(t *testing.T) {
	ds := synthCohort(50, 0.4)
	_, err := GenerateSplits(ds, 0, 0.75, "event", 1)
	assert.Error(t, err)
	_, err = GenerateSplits(ds, 5, 1.5, "event", 1)
	assert.Error(t, err)
}

func TestRemapSplitsFiltersSmallAndEventFree(t *testing.T) {
	target := synthCohort(100, 0.3) // p000..p029 have events

	base := [][]string{
		{"p000", "p001", "p050", "p051", "p052"}, // 5 rows, 2 events: kept
		{"p060", "p061", "p062", "p063", "p064"}, // no events: dropped
		{"p002", "p070"},                         // below min rows: dropped
		{"p003", "ghost1", "ghost2", "p080", "p081", "p082"}, // ghosts intersected away, 5 rows 1 event: kept
	}

	splits, dropped, err := RemapSplits(base, target, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	require.Len(t, splits, 2)

	// remapped train = cohort minus test, still disjoint
	first := splits[0]
	assert.ElementsMatch(t, []string{"p000", "p001", "p050", "p051", "p052"}, first.TestIDs)
	assert.Equal(t, target.Frame.Len()-len(first.TestIDs), len(first.TrainIDs))
	inTest := make(map[string]bool)
	for _, id := range first.TestIDs {
		inTest[id] = true
	}
	for _, id := range first.TrainIDs {
		assert.False(t, inTest[id])
	}

	// split IDs preserve base positions for paired comparison
	assert.Equal(t, 1, splits[0].ID)
	assert.Equal(t, 4, splits[1].ID)
}

func TestRemapSplitsRequiresIDColumn(t *testing.T) {
	target := synthCohort(10, 0.5)
	target.IDColumn = ""
	_, _, err := RemapSplits([][]string{{"p1"}}, target, 1, 1)
	require.ErrorIs(t, err, dataset.ErrMissingColumn)
}

func TestRemapNeverReturnsEventFreeSplit(t *testing.T) {
	target := synthCohort(60, 0.2)
	status := target.Status()
	byID := target.Frame.IndexByID()

	base := make([][]string, 0, 10)
	for i := 0; i < 10; i++ {
		list := make([]string, 0, 6)
		for j := i * 6; j < (i+1)*6; j++ {
			list = append(list, target.Frame.IDs[j])
		}
		base = append(base, list)
	}

	splits, _, err := RemapSplits(base, target, 3, 1)
	require.NoError(t, err)
	for _, s := range splits {
		events := 0
		for _, id := range s.TestIDs {
			if status[byID[id]] == 1 {
				events++
			}
		}
		assert.GreaterOrEqual(t, events, 1)
		assert.GreaterOrEqual(t, len(s.TestIDs), 3)
	}
}
