// Package projectconfig loads the experiment definition from a YAML file.
// The file binds a cohort CSV, the split plan, the model roster and the
// engine knobs into one reproducible unit.
package projectconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/graftlab/survbench/internal/adapters"
	"github.com/graftlab/survbench/internal/engine"
	"github.com/graftlab/survbench/internal/partition"
	"github.com/graftlab/survbench/internal/survival"
)

// Defaults for experiment configuration. Load() references them and no other
// code should duplicate them.
const (
	DefaultSplitCount      = 25
	DefaultSplitTimeoutSec = 1800
	DefaultOutputDir       = "results"
	DefaultProgressFile    = "progress.json"
)

// DatasetConfig binds the cohort CSV and its outcome columns.
type DatasetConfig struct {
	Label        string   `yaml:"label"`
	Path         string   `yaml:"path"`
	TimeColumn   string   `yaml:"time_column"`
	StatusColumn string   `yaml:"status_column"`
	IDColumn     string   `yaml:"id_column,omitempty"`
	Features     []string `yaml:"features,omitempty"` // empty means every non-outcome column
}

// SplitConfig describes how splits are generated or remapped.
type SplitConfig struct {
	Count         int     `yaml:"count,omitempty"`
	TrainFraction float64 `yaml:"train_fraction,omitempty"`
	Strata        string  `yaml:"strata,omitempty"`
	Seed          int64   `yaml:"seed,omitempty"`

	// BaseFile remaps the test memberships of an earlier experiment onto
	// this cohort instead of generating fresh splits.
	BaseFile      string `yaml:"base_file,omitempty"`
	MinTestRows   int    `yaml:"min_test_rows,omitempty"`
	MinTestEvents int    `yaml:"min_test_events,omitempty"`
}

// EngineConfig mirrors the engine knobs in YAML form.
type EngineConfig struct {
	Workers           int     `yaml:"workers,omitempty"`
	ThreadsPerAdapter int     `yaml:"threads_per_adapter,omitempty"`
	Horizon           float64 `yaml:"horizon,omitempty"`
	StartAt           int     `yaml:"start_at,omitempty"`
	MaxSplits         int     `yaml:"max_splits,omitempty"`
	SplitTimeoutSec   int     `yaml:"split_timeout_sec,omitempty"`

	PrimaryMetric   string  `yaml:"primary_metric,omitempty"`
	ConfidenceLevel float64 `yaml:"confidence_level,omitempty"`
	TieEpsilon      float64 `yaml:"tie_epsilon,omitempty"`

	Permutation engine.PermutationConfig `yaml:"permutation,omitempty"`
}

// OutputConfig names the artifact locations.
type OutputConfig struct {
	Dir          string `yaml:"dir,omitempty"`
	ProgressFile string `yaml:"progress_file,omitempty"`
}

// Experiment is the top-level configuration.
type Experiment struct {
	Dataset DatasetConfig     `yaml:"dataset"`
	Splits  SplitConfig       `yaml:"splits,omitempty"`
	Models  []adapters.Config `yaml:"models"`
	Engine  EngineConfig      `yaml:"engine,omitempty"`
	Output  OutputConfig      `yaml:"output,omitempty"`
}

// Load reads, defaults and validates an experiment file.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment file: %w", err)
	}
	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parsing experiment file: %w", err)
	}
	exp.applyDefaults()
	if err := exp.validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (e *Experiment) applyDefaults() {
	if e.Splits.Count <= 0 {
		e.Splits.Count = DefaultSplitCount
	}
	if e.Splits.TrainFraction <= 0 {
		e.Splits.TrainFraction = partition.DefaultTrainFraction
	}
	if e.Engine.SplitTimeoutSec < 0 {
		e.Engine.SplitTimeoutSec = 0
	}
	if e.Engine.SplitTimeoutSec == 0 {
		e.Engine.SplitTimeoutSec = DefaultSplitTimeoutSec
	}
	if e.Output.Dir == "" {
		e.Output.Dir = DefaultOutputDir
	}
	if e.Output.ProgressFile == "" {
		e.Output.ProgressFile = DefaultProgressFile
	}
}

func (e *Experiment) validate() error {
	if e.Dataset.Path == "" {
		return fmt.Errorf("experiment: dataset.path is required")
	}
	if e.Dataset.TimeColumn == "" || e.Dataset.StatusColumn == "" {
		return fmt.Errorf("experiment: dataset.time_column and dataset.status_column are required")
	}
	if len(e.Models) == 0 {
		return fmt.Errorf("experiment: at least one model is required")
	}
	if e.Splits.BaseFile != "" && e.Dataset.IDColumn == "" {
		return fmt.Errorf("experiment: splits.base_file requires dataset.id_column")
	}
	if m := e.Engine.PrimaryMetric; m != "" && m != survival.MetricHarrellC && m != survival.MetricUnoC {
		return fmt.Errorf("experiment: unknown primary_metric %q", m)
	}
	return nil
}

// EngineConfig converts the YAML knobs into the engine's runtime config.
func (e *Experiment) EngineConfig() engine.Config {
	return engine.Config{
		DatasetLabel:      e.Dataset.Label,
		Horizon:           e.Engine.Horizon,
		Workers:           e.Engine.Workers,
		ThreadsPerAdapter: e.Engine.ThreadsPerAdapter,
		StartAt:           e.Engine.StartAt,
		MaxSplits:         e.Engine.MaxSplits,
		SplitTimeout:      time.Duration(e.Engine.SplitTimeoutSec) * time.Second,
		PrimaryMetric:     e.Engine.PrimaryMetric,
		ConfidenceLevel:   e.Engine.ConfidenceLevel,
		TieEpsilon:        e.Engine.TieEpsilon,
		Permutation:       e.Engine.Permutation,
	}
}
