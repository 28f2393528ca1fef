package survival

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHarrellCPerfectDiscrimination(t *testing.T) {
	// shorter survival <=> higher risk score, everyone has an event
	times := []float64{1, 2, 3, 4}
	status := []float64{1, 1, 1, 1}
	scores := []float64{0.9, 0.7, 0.4, 0.1}
	assert.Equal(t, 1.0, HarrellC(times, status, scores))

	// reversed scores: perfectly discordant
	reversed := []float64{0.1, 0.4, 0.7, 0.9}
	assert.Equal(t, 0.0, HarrellC(times, status, reversed))
}

func TestHarrellCAllCensoredIsNaN(t *testing.T) {
	v := HarrellC([]float64{1, 2, 3}, []float64{0, 0, 0}, []float64{0.1, 0.5, 0.9})
	assert.True(t, math.IsNaN(v))
}

func TestHarrellCIdenticalScoresIsNaN(t *testing.T) {
	v := HarrellC([]float64{1, 2, 3}, []float64{1, 1, 0}, []float64{0.5, 0.5, 0.5})
	assert.True(t, math.IsNaN(v))
}

func TestHarrellCEmptyAndAllMissing(t *testing.T) {
	assert.True(t, math.IsNaN(HarrellC(nil, nil, nil)))

	nan := math.NaN()
	v := HarrellC([]float64{nan, nan}, []float64{1, 0}, []float64{0.2, 0.8})
	assert.True(t, math.IsNaN(v))
}

func TestHarrellCDropsMissingRows(t *testing.T) {
	nan := math.NaN()
	times := []float64{1, 2, nan, 4}
	status := []float64{1, 1, 1, 1}
	scores := []float64{0.9, 0.7, nan, 0.1}
	assert.Equal(t, 1.0, HarrellC(times, status, scores))
}

func TestHarrellCRangeOnRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		n := 30
		times := make([]float64, n)
		status := make([]float64, n)
		scores := make([]float64, n)
		for i := range times {
			times[i] = rng.Float64()*50 + 1
			if rng.Float64() < 0.4 {
				status[i] = 1
			}
			scores[i] = rng.NormFloat64()
		}
		v := HarrellC(times, status, scores)
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestHarrellCTiedScoresCountHalf(t *testing.T) {
	// three subjects, one tied comparable pair among the rest
	times := []float64{1, 2, 3}
	status := []float64{1, 1, 1}
	scores := []float64{0.9, 0.5, 0.5}
	// pairs: (1,2) concordant, (1,3) concordant, (2,3) tied -> (2 + 0.5) / 3
	assert.InDelta(t, 2.5/3.0, HarrellC(times, status, scores), 1e-12)
}

func TestUnoCMatchesHarrellWithoutCensoring(t *testing.T) {
	// no censoring: IPCW weights are all 1, Uno restricted to a horizon past
	// every event equals Harrell
	times := []float64{2, 5, 9, 14, 20}
	status := []float64{1, 1, 1, 1, 1}
	scores := []float64{0.8, 0.6, 0.55, 0.3, 0.2}

	uno, fallback := UnoC(times, status, scores, 100)
	assert.False(t, fallback)
	assert.InDelta(t, HarrellC(times, status, scores), uno, 1e-12)
}

func TestUnoCFallsBackBeyondHorizon(t *testing.T) {
	// horizon before every event time: nothing usable, fall back to Harrell
	times := []float64{10, 20, 30, 40}
	status := []float64{1, 1, 0, 0}
	scores := []float64{0.9, 0.6, 0.4, 0.1}

	uno, fallback := UnoC(times, status, scores, 5)
	assert.True(t, fallback)
	assert.InDelta(t, HarrellC(times, status, scores), uno, 1e-12)
}

func TestUnoCDegenerateInput(t *testing.T) {
	v, fallback := UnoC([]float64{1, 2}, []float64{0, 0}, []float64{0.3, 0.7}, 10)
	assert.True(t, math.IsNaN(v))
	assert.False(t, fallback)
}

func TestUnoCRange(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	for trial := 0; trial < 20; trial++ {
		n := 40
		times := make([]float64, n)
		status := make([]float64, n)
		scores := make([]float64, n)
		for i := range times {
			times[i] = rng.Float64()*60 + 1
			if rng.Float64() < 0.35 {
				status[i] = 1
			}
			scores[i] = rng.Float64()
		}
		v, _ := UnoC(times, status, scores, 30)
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestCensoringSurvivalSteps(t *testing.T) {
	// censorings at t=2 (1 of 4 at risk) and t=4 (1 of 2 at risk)
	times := []float64{1, 2, 3, 4}
	status := []float64{1, 0, 1, 0}
	g := censoringSurvival(times, status)

	assert.Equal(t, 1.0, g(0.5))
	assert.Equal(t, 1.0, g(1))
	assert.InDelta(t, 0.75, g(2), 1e-12)
	assert.InDelta(t, 0.75, g(3.5), 1e-12)
	assert.InDelta(t, 0.375, g(4), 1e-12)
	assert.InDelta(t, 0.375, g(99), 1e-12)
}
