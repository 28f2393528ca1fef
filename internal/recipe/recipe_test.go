package recipe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlab/survbench/internal/dataset"
)

func frameWithMissing() *dataset.Frame {
	return &dataset.Frame{
		IDs:     []string{"a", "b", "c", "d"},
		Columns: []string{"age", "sex"},
		Numeric: map[string][]float64{"age": {40, math.NaN(), 60, 50}},
		Factor:  map[string][]string{"sex": {"M", "F", "", "F"}},
	}
}

func TestImputeFillsFromTrainingStats(t *testing.T) {
	train := frameWithMissing()
	r := Impute{}

	state, err := r.Fit(train, []string{"age", "sex"})
	require.NoError(t, err)

	applied, err := r.Apply(state, train, []string{"age", "sex"})
	require.NoError(t, err)

	// median of {40, 60, 50} = 50, mode of {M, F, F} = F
	assert.Equal(t, 50.0, applied.Numeric["age"][1])
	assert.Equal(t, "F", applied.Factor["sex"][2])

	// original frame untouched
	assert.True(t, math.IsNaN(train.Numeric["age"][1]))
	assert.Equal(t, "", train.Factor["sex"][2])
}

func TestImputeUsesTrainNotTestDistribution(t *testing.T) {
	train := &dataset.Frame{
		IDs:     []string{"a", "b", "c"},
		Columns: []string{"x"},
		Numeric: map[string][]float64{"x": {1, 2, 3}},
		Factor:  map[string][]string{},
	}
	test := &dataset.Frame{
		IDs:     []string{"d", "e"},
		Columns: []string{"x"},
		Numeric: map[string][]float64{"x": {1000, math.NaN()}},
		Factor:  map[string][]string{},
	}

	r := Impute{}
	state, err := r.Fit(train, []string{"x"})
	require.NoError(t, err)

	applied, err := r.Apply(state, test, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, applied.Numeric["x"][1], "fill must come from the training median")
}

func TestImputeUnknownFeature(t *testing.T) {
	r := Impute{}
	_, err := r.Fit(frameWithMissing(), []string{"ghost"})
	assert.ErrorIs(t, err, dataset.ErrMissingColumn)
}

func TestApplyRejectsForeignState(t *testing.T) {
	r := Impute{}
	_, err := r.Apply(struct{}{}, frameWithMissing(), nil)
	assert.Error(t, err)
}
