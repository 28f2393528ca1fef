package engine

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/graftlab/survbench/internal/survival"
)

// Defaults for engine knobs.
const (
	DefaultWorkerShare     = 0.8
	DefaultTopKImportance  = 15
	DefaultConfidenceLevel = 0.95
	DefaultTieEpsilon      = 0.005
)

// PermutationConfig bounds the permutation-importance work per split.
type PermutationConfig struct {
	Enabled bool    `yaml:"enabled"`
	TopK    int     `yaml:"top_k,omitempty"`
	Budget  float64 `yaml:"budget,omitempty"` // max summed unit cost per (split, model); 0 = unbounded
	Seed    int64   `yaml:"seed,omitempty"`
}

// Config is the immutable engine configuration, passed explicitly into the
// scheduler and threaded down to workers. There is no ambient global
// configuration anywhere in the engine.
type Config struct {
	DatasetLabel string
	Horizon      float64

	Workers           int
	ThreadsPerAdapter int
	StartAt           int // 1-based first split to run; 0 means 1
	MaxSplits         int // 0 means all remaining
	SplitTimeout      time.Duration

	PrimaryMetric   string
	ConfidenceLevel float64
	TieEpsilon      float64

	Permutation PermutationConfig
}

// withDefaults fills the zero-valued knobs.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = int(float64(runtime.NumCPU()) * DefaultWorkerShare)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.ThreadsPerAdapter <= 0 {
		c.ThreadsPerAdapter = 1
	}
	if c.StartAt <= 0 {
		c.StartAt = 1
	}
	if c.PrimaryMetric == "" {
		c.PrimaryMetric = survival.MetricHarrellC
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		c.ConfidenceLevel = DefaultConfidenceLevel
	}
	if c.TieEpsilon <= 0 {
		c.TieEpsilon = DefaultTieEpsilon
	}
	if c.Permutation.TopK <= 0 {
		c.Permutation.TopK = DefaultTopKImportance
	}
	return c
}

// clampThreadBudget validates workers x threads-per-adapter against the
// available hardware parallelism. Oversubscription silently degrades
// throughput or hangs a run, which is worse than running fewer workers, so
// the worker count is reduced and a warning logged instead.
func (c Config) clampThreadBudget() Config {
	cpus := runtime.NumCPU()
	claimed := c.Workers * c.ThreadsPerAdapter
	if claimed <= cpus {
		return c
	}
	reduced := cpus / c.ThreadsPerAdapter
	if reduced < 1 {
		reduced = 1
	}
	slog.Warn("engine: requested thread budget oversubscribes hardware, clamping workers",
		"workers", c.Workers, "threads_per_adapter", c.ThreadsPerAdapter,
		"claimed", claimed, "cpus", cpus, "clamped_workers", reduced)
	c.Workers = reduced
	return c
}
