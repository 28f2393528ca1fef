// Package survival computes the discrimination metrics of the benchmark:
// Harrell's concordance index and a time-horizon-restricted, censoring-
// weighted variant (Uno's C). Degenerate inputs yield NaN with a logged
// reason, never an error; callers treat NaN metric values as "no evidence".
package survival

import (
	"log/slog"
	"math"
)

// MetricHarrellC and MetricUnoC name the two metric variants in records.
const (
	MetricHarrellC = "harrell_c"
	MetricUnoC     = "uno_c"
)

// minUsableWeight is the smallest IPCW denominator Uno's C accepts before
// falling back to Harrell's C.
const minUsableWeight = 1e-10

// HarrellC computes the standard concordance index over all comparable
// pairs. Returns NaN when the cleaned input is empty, contains no events,
// or has no discriminative power (all scores identical).
func HarrellC(times, status, scores []float64) float64 {
	t, s, x, ok := clean(times, status, scores)
	if !ok {
		return math.NaN()
	}

	concordant, tied, comparable := 0.0, 0.0, 0.0
	for i := 0; i < len(t); i++ {
		for j := i + 1; j < len(t); j++ {
			a, b := i, j
			if t[b] < t[a] {
				a, b = b, a
			}
			if t[a] == t[b] || s[a] != 1 {
				continue // tied times or earlier subject censored: not comparable
			}
			comparable++
			switch {
			case x[a] > x[b]:
				concordant++
			case x[a] == x[b]:
				tied++
			}
		}
	}

	if comparable == 0 {
		slog.Debug("harrell_c: no comparable pairs", "n", len(t))
		return math.NaN()
	}
	return (concordant + 0.5*tied) / comparable
}

// UnoC computes the concordance index restricted to the given time horizon,
// weighting comparable pairs by the inverse squared probability of remaining
// uncensored (marginal Kaplan-Meier censoring model). When too little weight
// survives inside the horizon the function falls back to Harrell's C and
// reports fallback=true so the record can be flagged.
func UnoC(times, status, scores []float64, horizon float64) (value float64, fallback bool) {
	t, s, x, ok := clean(times, status, scores)
	if !ok {
		return math.NaN(), false
	}

	g := censoringSurvival(t, s)

	num, den := 0.0, 0.0
	for i := 0; i < len(t); i++ {
		if s[i] != 1 || t[i] >= horizon {
			continue
		}
		gi := g(t[i])
		if gi <= 0 {
			continue
		}
		w := 1 / (gi * gi)
		for j := 0; j < len(t); j++ {
			if j == i || t[j] <= t[i] {
				continue
			}
			den += w
			switch {
			case x[i] > x[j]:
				num += w
			case x[i] == x[j]:
				num += 0.5 * w
			}
		}
	}

	if den < minUsableWeight {
		slog.Debug("uno_c: too little usable weight within horizon, falling back to harrell_c",
			"n", len(t), "horizon", horizon)
		return HarrellC(times, status, scores), true
	}
	return num / den, false
}

// clean strips rows with missing time/status/score, logs an input summary at
// debug level and checks the degenerate cases shared by both metrics.
func clean(times, status, scores []float64) (t, s, x []float64, ok bool) {
	n := len(times)
	if len(status) != n || len(scores) != n {
		slog.Warn("concordance: ragged input lengths",
			"times", len(times), "status", len(status), "scores", len(scores))
		return nil, nil, nil, false
	}

	t = make([]float64, 0, n)
	s = make([]float64, 0, n)
	x = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(times[i]) || math.IsNaN(status[i]) || math.IsNaN(scores[i]) {
			continue
		}
		t = append(t, times[i])
		s = append(s, status[i])
		x = append(x, scores[i])
	}

	if len(t) == 0 {
		slog.Debug("concordance: empty input after removing missing values",
			"raw_n", n, "sample", sample(times), "sample_scores", sample(scores))
		return nil, nil, nil, false
	}

	events := 0
	tMin, tMax := t[0], t[0]
	xMin, xMax := x[0], x[0]
	for i := range t {
		if s[i] == 1 {
			events++
		}
		tMin = math.Min(tMin, t[i])
		tMax = math.Max(tMax, t[i])
		xMin = math.Min(xMin, x[i])
		xMax = math.Max(xMax, x[i])
	}

	slog.Debug("concordance: input summary",
		"n", len(t), "events", events,
		"time_min", tMin, "time_max", tMax,
		"score_min", xMin, "score_max", xMax)

	if events == 0 {
		slog.Debug("concordance: no events in input",
			"n", len(t), "sample_times", sample(t), "sample_status", sample(s))
		return nil, nil, nil, false
	}
	if xMin == xMax {
		slog.Debug("concordance: all risk scores identical",
			"n", len(t), "score", xMin)
		return nil, nil, nil, false
	}
	return t, s, x, true
}

// sample returns up to the first five values for failure diagnostics.
func sample(v []float64) []float64 {
	if len(v) > 5 {
		return v[:5]
	}
	return v
}
