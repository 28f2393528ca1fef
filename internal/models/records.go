// Package models holds the record types exchanged between the engine, the
// persisted result store, the aggregator and the reporting layer.
package models

import "time"

// MetricRecord is one (split, model, metric) observation. Value is NaN for
// degenerate inputs; Fallback marks a Uno's C that degraded to Harrell's C.
type MetricRecord struct {
	Dataset  string  `json:"dataset"`
	Split    int     `json:"split"`
	Model    string  `json:"model"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Fallback bool    `json:"fallback,omitempty"`
}

// ImportanceRecord is one permutation-importance observation: the drop in
// the primary metric caused by shuffling one feature's test values. Positive
// means the feature helped discrimination.
type ImportanceRecord struct {
	Dataset string  `json:"dataset"`
	Split   int     `json:"split"`
	Model   string  `json:"model"`
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// ResultBundle is everything one split worker returns. Workers never share
// bundles; the scheduler merges them after collection.
type ResultBundle struct {
	Split           int                 `json:"split"`
	Metrics         []MetricRecord      `json:"metrics"`
	Importances     []ImportanceRecord  `json:"importances,omitempty"`
	DroppedFeatures map[string][]string `json:"dropped_features,omitempty"` // model -> features dropped after a constant-predictor retry
	SkippedModels   []string            `json:"skipped_models,omitempty"`
}

// AggregateSummary is the per-model reduction of metric records.
type AggregateSummary struct {
	Model   string  `json:"model"`
	Metric  string  `json:"metric"`
	NSplits int     `json:"n_splits"`
	Mean    float64 `json:"mean"`
	SD      float64 `json:"sd"`
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`
	Level   float64 `json:"ci_level"`
}

// ModelImportance is the per-model mean importance table for one feature.
type ModelImportance struct {
	Model      string  `json:"model"`
	Feature    string  `json:"feature"`
	Mean       float64 `json:"mean"`
	Normalized float64 `json:"normalized"`
}

// UnionImportanceRecord fuses importance across model families: raw means
// and min-max normalized scores per contributing model, a combined score
// (mean of available normalized values) and a descending rank. A model that
// never saw the feature is simply absent from the maps.
type UnionImportanceRecord struct {
	Feature    string             `json:"feature"`
	RawMean    map[string]float64 `json:"raw_mean"`
	Normalized map[string]float64 `json:"normalized"`
	Combined   float64            `json:"combined"`
	Rank       int                `json:"rank"`
}

// Selection rules, in the order the selector applies them.
const (
	RulePrimaryMetric        = "primary_metric"
	RuleTieSD                = "tie_rule_sd"
	RuleTieDispersion        = "tie_rule_dispersion"
	RuleConsensusPlaceholder = "tie_rule_consensus_placeholder"
)

// SelectionDecision is the audited outcome of the model selector.
type SelectionDecision struct {
	Dataset   string    `json:"dataset"`
	Ranked    []string  `json:"ranked_models"`
	Chosen    string    `json:"chosen_model"`
	Rule      string    `json:"chosen_rule"`
	Path      []string  `json:"decision_path"`
	Timestamp time.Time `json:"timestamp"`
}
