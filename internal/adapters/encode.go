package adapters

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/graftlab/survbench/internal/dataset"
)

// encoder turns a feature list into a dense design matrix: numeric columns
// are standardized with training statistics, factor columns are one-hot
// encoded over the training levels (first level dropped as reference).
// Fitted once on the training frame, then applied to any frame with the
// same columns; unseen test levels encode as all-zero dummies.
type encoder struct {
	features []string
	numeric  map[string]numericStats
	levels   map[string][]string // per factor, reference level first
	width    int
}

type numericStats struct {
	mean, sd float64
}

// newEncoder fits an encoder on the training frame. Constant features are
// rejected with a KindConstantPredictor error naming every offender, so the
// worker can drop them all in one retry.
func newEncoder(model string, train *dataset.Frame, features []string) (*encoder, error) {
	enc := &encoder{
		features: features,
		numeric:  make(map[string]numericStats),
		levels:   make(map[string][]string),
	}
	var constant []string

	for _, name := range features {
		if col, ok := train.Numeric[name]; ok {
			st := fitStats(col)
			if st.sd == 0 || math.IsNaN(st.sd) {
				constant = append(constant, name)
				continue
			}
			enc.numeric[name] = st
			enc.width++
			continue
		}
		if col, ok := train.Factor[name]; ok {
			levels := distinctLevels(col)
			if len(levels) < 2 {
				constant = append(constant, name)
				continue
			}
			enc.levels[name] = levels
			enc.width += len(levels) - 1
			continue
		}
		return nil, &AdapterError{Kind: KindInternal, Model: model,
			Err: fmt.Errorf("%w: %s", dataset.ErrMissingColumn, name)}
	}

	if len(constant) > 0 {
		return nil, &AdapterError{Kind: KindConstantPredictor, Model: model, Features: constant}
	}
	if enc.width == 0 {
		return nil, &AdapterError{Kind: KindInternal, Model: model,
			Err: fmt.Errorf("no usable features after encoding")}
	}
	return enc, nil
}

// matrix encodes the frame into an n x width design matrix.
func (e *encoder) matrix(f *dataset.Frame) *mat.Dense {
	n := f.Len()
	x := mat.NewDense(n, e.width, nil)

	col := 0
	for _, name := range e.features {
		if st, ok := e.numeric[name]; ok {
			src := f.Numeric[name]
			for i := 0; i < n; i++ {
				v := src[i]
				if math.IsNaN(v) {
					v = st.mean // recipe should have filled this; stay robust
				}
				x.Set(i, col, (v-st.mean)/st.sd)
			}
			col++
			continue
		}
		levels := e.levels[name]
		src := f.Factor[name]
		for li := 1; li < len(levels); li++ {
			for i := 0; i < n; i++ {
				if src[i] == levels[li] {
					x.Set(i, col, 1)
				}
			}
			col++
		}
	}
	return x
}

func fitStats(col []float64) numericStats {
	sum, n := 0.0, 0
	for _, v := range col {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return numericStats{}
	}
	mean := sum / float64(n)
	ss := 0.0
	for _, v := range col {
		if !math.IsNaN(v) {
			d := v - mean
			ss += d * d
		}
	}
	return numericStats{mean: mean, sd: math.Sqrt(ss / float64(n))}
}

func distinctLevels(col []string) []string {
	seen := make(map[string]bool)
	for _, v := range col {
		if v != "" {
			seen[v] = true
		}
	}
	levels := make([]string, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Strings(levels)
	return levels
}
