// Package aggregate reduces per-split records to per-model summaries with
// t-distribution confidence intervals, and fuses permutation importance
// across model families.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/graftlab/survbench/internal/models"
)

type metricKey struct {
	split  int
	model  string
	metric string
}

type groupKey struct {
	model  string
	metric string
}

// Summarize reduces metric records to one summary per (model, metric).
// Records are deduplicated by (split, model, metric) with the first
// occurrence winning, so re-appended splits from overlapping resume ranges
// count once. NaN values are excluded from the reduction. The result is
// independent of record order up to deduplication and sorted by model then
// metric.
func Summarize(records []models.MetricRecord, level float64) []models.AggregateSummary {
	seen := make(map[metricKey]bool, len(records))
	groups := make(map[groupKey][]float64)

	for _, rec := range records {
		k := metricKey{rec.Split, rec.Model, rec.Metric}
		if seen[k] {
			continue
		}
		seen[k] = true
		if math.IsNaN(rec.Value) {
			continue
		}
		g := groupKey{rec.Model, rec.Metric}
		groups[g] = append(groups[g], rec.Value)
	}

	out := make([]models.AggregateSummary, 0, len(groups))
	for g, values := range groups {
		mean, sd := stat.MeanStdDev(values, nil)
		n := len(values)

		lower, upper := math.NaN(), math.NaN()
		if n == 1 {
			sd = math.NaN()
		} else {
			t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
			q := t.Quantile(1 - (1-level)/2)
			half := q * sd / math.Sqrt(float64(n))
			lower, upper = mean-half, mean+half
		}

		out = append(out, models.AggregateSummary{
			Model:   g.model,
			Metric:  g.metric,
			NSplits: n,
			Mean:    mean,
			SD:      sd,
			CILower: lower,
			CIUpper: upper,
			Level:   level,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

type importanceKey struct {
	split   int
	model   string
	feature string
}

// FuseImportance computes per-model mean importance tables and joins them
// into one union table over all features any model scored. Per model the
// means are min-max normalized to [0, 1] (an all-equal table normalizes to
// 1.0 everywhere); the combined score is the mean of the normalized values
// from the models that scored the feature. Ranks descend by combined score,
// with equal scores sharing a rank.
func FuseImportance(records []models.ImportanceRecord) ([]models.ModelImportance, []models.UnionImportanceRecord) {
	seen := make(map[importanceKey]bool, len(records))
	sums := make(map[string]map[string]float64) // model -> feature -> sum
	counts := make(map[string]map[string]int)

	for _, rec := range records {
		k := importanceKey{rec.Split, rec.Model, rec.Feature}
		if seen[k] {
			continue
		}
		seen[k] = true
		if math.IsNaN(rec.Value) {
			continue
		}
		if sums[rec.Model] == nil {
			sums[rec.Model] = make(map[string]float64)
			counts[rec.Model] = make(map[string]int)
		}
		sums[rec.Model][rec.Feature] += rec.Value
		counts[rec.Model][rec.Feature]++
	}

	perModel := make([]models.ModelImportance, 0)
	normalized := make(map[string]map[string]float64) // model -> feature -> normalized
	rawMeans := make(map[string]map[string]float64)

	for model, featSums := range sums {
		means := make(map[string]float64, len(featSums))
		lo, hi := math.Inf(1), math.Inf(-1)
		for feature, sum := range featSums {
			m := sum / float64(counts[model][feature])
			means[feature] = m
			if m < lo {
				lo = m
			}
			if m > hi {
				hi = m
			}
		}

		norm := make(map[string]float64, len(means))
		for feature, m := range means {
			if hi == lo {
				norm[feature] = 1.0
			} else {
				norm[feature] = (m - lo) / (hi - lo)
			}
		}
		rawMeans[model] = means
		normalized[model] = norm

		for feature, m := range means {
			perModel = append(perModel, models.ModelImportance{
				Model: model, Feature: feature,
				Mean: m, Normalized: norm[feature],
			})
		}
	}

	sort.Slice(perModel, func(i, j int) bool {
		if perModel[i].Model != perModel[j].Model {
			return perModel[i].Model < perModel[j].Model
		}
		return perModel[i].Feature < perModel[j].Feature
	})

	// full outer join over features
	features := make(map[string]bool)
	for _, means := range rawMeans {
		for feature := range means {
			features[feature] = true
		}
	}

	union := make([]models.UnionImportanceRecord, 0, len(features))
	for feature := range features {
		rec := models.UnionImportanceRecord{
			Feature:    feature,
			RawMean:    make(map[string]float64),
			Normalized: make(map[string]float64),
		}
		var sum float64
		var n int
		for model := range rawMeans {
			m, ok := rawMeans[model][feature]
			if !ok {
				continue
			}
			rec.RawMean[model] = m
			rec.Normalized[model] = normalized[model][feature]
			sum += normalized[model][feature]
			n++
		}
		rec.Combined = sum / float64(n)
		union = append(union, rec)
	}

	// descending combined score; ties share a rank, name breaks the order
	sort.Slice(union, func(i, j int) bool {
		if union[i].Combined != union[j].Combined {
			return union[i].Combined > union[j].Combined
		}
		return union[i].Feature < union[j].Feature
	})
	for i := range union {
		if i > 0 && union[i].Combined == union[i-1].Combined {
			union[i].Rank = union[i-1].Rank
			continue
		}
		union[i].Rank = i + 1
	}

	return perModel, union
}
