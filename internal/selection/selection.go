// Package selection chooses a model family from aggregate summaries using a
// fixed, auditable rule chain. Every run over the same inputs produces the
// same choice and the same decision path.
package selection

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/graftlab/survbench/internal/models"
)

// DispersionThreshold is the normalized-importance level above which a
// feature counts toward a model's dispersion.
const DispersionThreshold = 0.1

// Select ranks models by their mean primary metric and applies tie-breaking
// rules in order: primary metric, then lowest SD, then highest importance
// dispersion, then a lexicographic consensus placeholder. Two models are
// considered tied when their means differ by at most tieEpsilon and their
// confidence intervals overlap. Models whose mean is NaN are excluded from
// the ranking.
func Select(dataset string, summaries []models.AggregateSummary, union []models.UnionImportanceRecord, primaryMetric string, tieEpsilon float64) (*models.SelectionDecision, error) {
	candidates := make([]models.AggregateSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.Metric != primaryMetric || math.IsNaN(s.Mean) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("selection: no usable %s summaries", primaryMetric)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Mean != candidates[j].Mean {
			return candidates[i].Mean > candidates[j].Mean
		}
		return candidates[i].Model < candidates[j].Model
	})

	decision := &models.SelectionDecision{
		Dataset:   dataset,
		Timestamp: time.Now().UTC(),
	}
	for _, c := range candidates {
		decision.Ranked = append(decision.Ranked, c.Model)
	}

	best := candidates[0]
	tied := []models.AggregateSummary{best}
	for _, c := range candidates[1:] {
		if isTied(best, c, tieEpsilon) {
			tied = append(tied, c)
		}
	}

	if len(tied) == 1 {
		decision.Chosen = best.Model
		decision.Rule = models.RulePrimaryMetric
		decision.Path = append(decision.Path, fmt.Sprintf(
			"%s: %s leads at %.4f with no tied challenger (epsilon=%.4f)",
			models.RulePrimaryMetric, best.Model, best.Mean, tieEpsilon))
		return decision, nil
	}

	decision.Path = append(decision.Path, fmt.Sprintf(
		"%s: %d models tied with %s at %.4f (epsilon=%.4f)",
		models.RulePrimaryMetric, len(tied), best.Model, best.Mean, tieEpsilon))

	// lowest SD among the tied set; NaN SD (single split) loses to any real SD
	if winner, ok := uniqueMin(tied, func(s models.AggregateSummary) float64 {
		if math.IsNaN(s.SD) {
			return math.Inf(1)
		}
		return s.SD
	}); ok {
		decision.Chosen = winner.Model
		decision.Rule = models.RuleTieSD
		decision.Path = append(decision.Path, fmt.Sprintf(
			"%s: %s has the lowest sd %.4f", models.RuleTieSD, winner.Model, winner.SD))
		return decision, nil
	}
	decision.Path = append(decision.Path, fmt.Sprintf("%s: sd tied", models.RuleTieSD))

	// most features above the dispersion threshold: prefer the model that
	// draws signal from more predictors
	counts := dispersionCounts(union)
	if winner, ok := uniqueMin(tied, func(s models.AggregateSummary) float64 {
		return -float64(counts[s.Model])
	}); ok {
		decision.Chosen = winner.Model
		decision.Rule = models.RuleTieDispersion
		decision.Path = append(decision.Path, fmt.Sprintf(
			"%s: %s has the highest dispersion count (%d features over %.2f)",
			models.RuleTieDispersion, winner.Model, counts[winner.Model], DispersionThreshold))
		return decision, nil
	}
	decision.Path = append(decision.Path, fmt.Sprintf("%s: dispersion tied", models.RuleTieDispersion))

	// final deterministic fallback until a cross-metric consensus rule exists
	winner := tied[0]
	for _, c := range tied[1:] {
		if c.Model < winner.Model {
			winner = c
		}
	}
	decision.Chosen = winner.Model
	decision.Rule = models.RuleConsensusPlaceholder
	decision.Path = append(decision.Path, fmt.Sprintf(
		"%s: %s is first lexicographically", models.RuleConsensusPlaceholder, winner.Model))
	return decision, nil
}

// isTied reports whether b is statistically indistinguishable from the
// leader a: means within epsilon and overlapping confidence intervals.
// Models without intervals (single split) fall back to the epsilon test.
func isTied(a, b models.AggregateSummary, epsilon float64) bool {
	if math.Abs(a.Mean-b.Mean) > epsilon {
		return false
	}
	if math.IsNaN(a.CILower) || math.IsNaN(b.CILower) {
		return true
	}
	return a.CILower <= b.CIUpper && b.CILower <= a.CIUpper
}

func dispersionCounts(union []models.UnionImportanceRecord) map[string]int {
	counts := make(map[string]int)
	for _, rec := range union {
		for model, norm := range rec.Normalized {
			if norm >= DispersionThreshold {
				counts[model]++
			}
		}
	}
	return counts
}

// uniqueMin returns the summary with the strictly smallest key, or false
// when the minimum is shared.
func uniqueMin(tied []models.AggregateSummary, key func(models.AggregateSummary) float64) (models.AggregateSummary, bool) {
	winner := tied[0]
	min := key(winner)
	unique := true
	for _, c := range tied[1:] {
		k := key(c)
		switch {
		case k < min:
			winner, min, unique = c, k, true
		case k == min:
			unique = false
		}
	}
	return winner, unique
}
