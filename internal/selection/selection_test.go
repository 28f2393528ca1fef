package selection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlab/survbench/internal/models"
)

func summary(model string, mean, sd, lo, hi float64) models.AggregateSummary {
	return models.AggregateSummary{
		Model: model, Metric: "harrell_c", NSplits: 25,
		Mean: mean, SD: sd, CILower: lo, CIUpper: hi, Level: 0.95,
	}
}

func TestSelectClearWinnerUsesPrimaryMetric(t *testing.T) {
	summaries := []models.AggregateSummary{
		summary("cox", 0.60, 0.03, 0.588, 0.612),
		summary("gbm", 0.75, 0.03, 0.738, 0.762),
	}

	d, err := Select("graft", summaries, nil, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "gbm", d.Chosen)
	assert.Equal(t, models.RulePrimaryMetric, d.Rule)
	assert.Equal(t, []string{"gbm", "cox"}, d.Ranked)
	require.Len(t, d.Path, 1)
	assert.Contains(t, d.Path[0], models.RulePrimaryMetric)
}

func TestSelectOverlappingCIsFallToSDRule(t *testing.T) {
	// means within epsilon and overlapping intervals: the steadier model wins
	summaries := []models.AggregateSummary{
		summary("forest", 0.701, 0.04, 0.684, 0.718),
		summary("gbm", 0.703, 0.02, 0.695, 0.711),
	}

	d, err := Select("graft", summaries, nil, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "gbm", d.Chosen)
	assert.Equal(t, models.RuleTieSD, d.Rule)
	assert.Equal(t, []string{"gbm", "forest"}, d.Ranked)
	require.Len(t, d.Path, 2)
	assert.Contains(t, d.Path[0], "2 models tied")
	assert.Contains(t, d.Path[1], models.RuleTieSD)
}

func TestSelectCIOverlapAloneIsNotATie(t *testing.T) {
	// wide overlapping intervals but means beyond epsilon: no tie
	summaries := []models.AggregateSummary{
		summary("cox", 0.70, 0.08, 0.667, 0.733),
		summary("gbm", 0.72, 0.03, 0.708, 0.732),
	}

	d, err := Select("graft", summaries, nil, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "gbm", d.Chosen)
	assert.Equal(t, models.RulePrimaryMetric, d.Rule)
}

func TestSelectEpsilonAloneWithDisjointCIsIsNotATie(t *testing.T) {
	// means within epsilon but non-overlapping tight intervals: no tie
	summaries := []models.AggregateSummary{
		summary("cox", 0.700, 0.001, 0.6996, 0.7004),
		summary("gbm", 0.703, 0.001, 0.7026, 0.7034),
	}

	d, err := Select("graft", summaries, nil, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "gbm", d.Chosen)
	assert.Equal(t, models.RulePrimaryMetric, d.Rule)
}

func TestSelectDispersionBreaksSDTie(t *testing.T) {
	summaries := []models.AggregateSummary{
		summary("cox", 0.701, 0.03, 0.688, 0.714),
		summary("gbm", 0.703, 0.03, 0.690, 0.716),
	}
	union := []models.UnionImportanceRecord{
		{Feature: "egfr", Normalized: map[string]float64{"cox": 1.0, "gbm": 1.0}},
		{Feature: "age", Normalized: map[string]float64{"cox": 0.5, "gbm": 0.05}},
		{Feature: "sex", Normalized: map[string]float64{"cox": 0.2, "gbm": 0.02}},
	}

	// cox draws signal from 3 features, gbm from only 1: cox wins
	d, err := Select("graft", summaries, union, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "cox", d.Chosen)
	assert.Equal(t, models.RuleTieDispersion, d.Rule)
	require.Len(t, d.Path, 3)
	assert.Contains(t, d.Path[1], "sd tied")
	assert.Contains(t, d.Path[2], "highest dispersion count (3")
}

func TestSelectConsensusPlaceholderIsDeterministic(t *testing.T) {
	summaries := []models.AggregateSummary{
		summary("zeta", 0.703, 0.03, 0.690, 0.716),
		summary("alpha", 0.701, 0.03, 0.688, 0.714),
	}

	d, err := Select("graft", summaries, nil, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "alpha", d.Chosen)
	assert.Equal(t, models.RuleConsensusPlaceholder, d.Rule)
	require.Len(t, d.Path, 4)
}

func TestSelectSingleSplitModelLosesSDRule(t *testing.T) {
	oneSplit := summary("gbm", 0.704, math.NaN(), math.NaN(), math.NaN())
	oneSplit.NSplits = 1
	summaries := []models.AggregateSummary{
		summary("cox", 0.701, 0.03, 0.688, 0.714),
		oneSplit,
	}

	d, err := Select("graft", summaries, nil, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "cox", d.Chosen)
	assert.Equal(t, models.RuleTieSD, d.Rule)
}

func TestSelectIgnoresOtherMetricsAndNaN(t *testing.T) {
	summaries := []models.AggregateSummary{
		summary("cox", 0.70, 0.03, 0.688, 0.712),
		{Model: "gbm", Metric: "uno_c", Mean: 0.99},
		{Model: "broken", Metric: "harrell_c", Mean: math.NaN()},
	}

	d, err := Select("graft", summaries, nil, "harrell_c", 0.005)
	require.NoError(t, err)
	assert.Equal(t, "cox", d.Chosen)
	assert.Equal(t, []string{"cox"}, d.Ranked)
}

func TestSelectNoCandidates(t *testing.T) {
	_, err := Select("graft", []models.AggregateSummary{
		{Model: "gbm", Metric: "uno_c", Mean: 0.7},
	}, nil, "harrell_c", 0.005)
	assert.Error(t, err)
}
