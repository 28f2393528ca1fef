// Package recipe is the preprocessing boundary between data preparation and
// the engine. A recipe is fitted on a split's training rows only and then
// applied to both train and test frames, so no test information leaks into
// the fitted state.
package recipe

import (
	"fmt"
	"math"
	"sort"

	"github.com/graftlab/survbench/internal/dataset"
)

// State is the opaque artifact produced by Fit. It is read-only after
// construction and safe to share across goroutines.
type State any

// Recipe fits preprocessing state on training rows and applies it elsewhere.
type Recipe interface {
	Fit(train *dataset.Frame, features []string) (State, error)
	Apply(state State, frame *dataset.Frame, features []string) (*dataset.Frame, error)
}

// Impute fills missing numeric cells with the training median and missing
// factor cells with the training mode.
type Impute struct{}

type imputeState struct {
	numericFill map[string]float64
	factorFill  map[string]string
}

// Fit computes per-feature fill values from the training frame.
func (Impute) Fit(train *dataset.Frame, features []string) (State, error) {
	st := &imputeState{
		numericFill: make(map[string]float64),
		factorFill:  make(map[string]string),
	}
	for _, name := range features {
		if col, ok := train.Numeric[name]; ok {
			st.numericFill[name] = median(col)
			continue
		}
		if col, ok := train.Factor[name]; ok {
			st.factorFill[name] = mode(col)
			continue
		}
		return nil, fmt.Errorf("recipe: %w: %s", dataset.ErrMissingColumn, name)
	}
	return st, nil
}

// Apply returns a copy of frame with the fitted fill values substituted for
// missing cells. Columns without missing values are shared, not copied.
func (Impute) Apply(state State, frame *dataset.Frame, features []string) (*dataset.Frame, error) {
	st, ok := state.(*imputeState)
	if !ok {
		return nil, fmt.Errorf("recipe: state was not produced by Impute.Fit")
	}

	out := &dataset.Frame{
		IDs:     frame.IDs,
		Columns: frame.Columns,
		Numeric: make(map[string][]float64, len(frame.Numeric)),
		Factor:  make(map[string][]string, len(frame.Factor)),
	}
	for k, v := range frame.Numeric {
		out.Numeric[k] = v
	}
	for k, v := range frame.Factor {
		out.Factor[k] = v
	}

	for name, fill := range st.numericFill {
		col, ok := frame.Numeric[name]
		if !ok {
			continue
		}
		if !hasNaN(col) {
			continue
		}
		filled := make([]float64, len(col))
		for i, v := range col {
			if math.IsNaN(v) {
				filled[i] = fill
			} else {
				filled[i] = v
			}
		}
		out.Numeric[name] = filled
	}

	for name, fill := range st.factorFill {
		col, ok := frame.Factor[name]
		if !ok {
			continue
		}
		missing := false
		for _, v := range col {
			if v == "" {
				missing = true
				break
			}
		}
		if !missing {
			continue
		}
		filled := make([]string, len(col))
		for i, v := range col {
			if v == "" {
				filled[i] = fill
			} else {
				filled[i] = v
			}
		}
		out.Factor[name] = filled
	}

	return out, nil
}

func hasNaN(col []float64) bool {
	for _, v := range col {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func median(col []float64) float64 {
	vals := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

func mode(col []string) string {
	counts := make(map[string]int)
	for _, v := range col {
		if v != "" {
			counts[v]++
		}
	}
	best, bestN := "", -1
	for v, n := range counts {
		// break count ties lexicographically so Fit is deterministic
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}
