// Package adapters defines the uniform capability contract the engine uses
// to drive model families, plus the shipped families: a Cox proportional-
// hazards model, a gradient-boosted tree model and an external-process
// adapter for models trained outside the Go process. The engine depends
// only on the interfaces here, never on a concrete family.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graftlab/survbench/internal/dataset"
)

// FittedModel is an opaque model-family-specific artifact. It is owned by
// the split worker that created it and must never be shared across workers.
type FittedModel any

// ModelAdapter is the capability contract every model family implements.
// Risk scores are one real per test row, higher meaning higher risk.
type ModelAdapter interface {
	Name() string
	Fit(ctx context.Context, train *dataset.Dataset, features []string) (FittedModel, error)
	Score(ctx context.Context, model FittedModel, test *dataset.Dataset, horizon float64) ([]float64, error)
	SupportsImportance() bool
}

// BatchScorer is implemented by adapters that must see train and test
// together, such as external-process models that score during training.
// The worker prefers this path when available.
type BatchScorer interface {
	FitScore(ctx context.Context, train, test *dataset.Dataset, features []string, horizon float64) (scores []float64, importance map[string]float64, err error)
}

// PermutationCoster optionally advertises the relative cost of one
// permutation rescore so the worker can budget importance work.
type PermutationCoster interface {
	PermutationUnitCost() float64
}

// ErrorKind classifies adapter failures so the worker can react per kind
// instead of inspecting message text.
type ErrorKind int

const (
	// KindInternal is an unclassified fit/score failure.
	KindInternal ErrorKind = iota
	// KindConstantPredictor means one or more features were constant in the
	// training rows; Features names them so the worker can drop and retry.
	KindConstantPredictor
	// KindTimeout means the adapter exceeded its wall-clock budget.
	KindTimeout
	// KindUnavailable means the model produced no usable result for this
	// split (e.g. a non-zero subprocess exit) and should be skipped.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindConstantPredictor:
		return "constant_predictor"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// AdapterError is the typed failure returned by adapter Fit/Score.
type AdapterError struct {
	Kind     ErrorKind
	Model    string
	Features []string // offending features for KindConstantPredictor
	Err      error
}

func (e *AdapterError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "adapter %s: %s", e.Model, e.Kind)
	if len(e.Features) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Features, ","))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// ConstantFeatures extracts the offending feature names when err is a
// constant-predictor rejection.
func ConstantFeatures(err error) ([]string, bool) {
	var ae *AdapterError
	if errors.As(err, &ae) && ae.Kind == KindConstantPredictor {
		return ae.Features, true
	}
	return nil, false
}

// IsKind reports whether err is an AdapterError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == kind
}

// Config declares one adapter instance in the engine configuration.
type Config struct {
	Name    string  `yaml:"name"`
	Kind    string  `yaml:"kind"` // cox | gbm | extern
	Threads int     `yaml:"threads,omitempty"` // extern: forwarded as --threads
	Seed    int64   `yaml:"seed,omitempty"`
	Ridge   float64 `yaml:"ridge,omitempty"` // cox

	// gbm
	Iterations   int     `yaml:"iterations,omitempty"`
	LearningRate float64 `yaml:"learning_rate,omitempty"`
	NumLeaves    int     `yaml:"num_leaves,omitempty"`

	// extern
	Command    string   `yaml:"command,omitempty"`
	Args       []string `yaml:"args,omitempty"`
	WorkDir    string   `yaml:"work_dir,omitempty"`
	TimeoutSec int      `yaml:"timeout_sec,omitempty"`
}

// New builds the adapter list declared by cfgs. Unknown kinds are an error:
// a silently missing model family would skew the benchmark.
func New(cfgs []Config) ([]ModelAdapter, error) {
	out := make([]ModelAdapter, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("adapters: config with empty name")
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("adapters: duplicate adapter name %q", cfg.Name)
		}
		seen[cfg.Name] = true

		switch cfg.Kind {
		case "cox":
			out = append(out, NewCox(cfg))
		case "gbm":
			out = append(out, NewGBM(cfg))
		case "extern":
			a, err := NewExternal(cfg)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		default:
			return nil, fmt.Errorf("adapters: unknown kind %q for adapter %q", cfg.Kind, cfg.Name)
		}
	}
	return out, nil
}
