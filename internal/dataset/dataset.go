// Package dataset holds the column-oriented table model the engine runs on:
// a survival time column, an event indicator, a stable row identifier and a
// set of numeric or categorical predictors.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// ErrMissingColumn indicates a required column is absent. This is a
// structural error: callers abort the run rather than degrade.
var ErrMissingColumn = errors.New("dataset: required column missing")

// Frame is an immutable-by-convention column table. Numeric columns use NaN
// for missing values, factor columns use the empty string. All column slices
// have the same length as IDs.
type Frame struct {
	IDs     []string
	Columns []string // stable column order, numeric and factor mixed
	Numeric map[string][]float64
	Factor  map[string][]string
}

// Dataset is a Frame plus the outcome/identifier column bindings.
type Dataset struct {
	Label        string
	TimeColumn   string
	StatusColumn string
	IDColumn     string
	Frame        *Frame
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.IDs) }

// HasColumn reports whether the frame carries the named column.
func (f *Frame) HasColumn(name string) bool {
	if _, ok := f.Numeric[name]; ok {
		return true
	}
	_, ok := f.Factor[name]
	return ok
}

// IsFactor reports whether the named column is categorical.
func (f *Frame) IsFactor(name string) bool {
	_, ok := f.Factor[name]
	return ok
}

// IndexByID returns a map from row identifier to positional index.
func (f *Frame) IndexByID() map[string]int {
	idx := make(map[string]int, len(f.IDs))
	for i, id := range f.IDs {
		idx[id] = i
	}
	return idx
}

// SubsetIndex returns a new frame containing the rows at the given positions,
// in the given order. Column slices are copied; the source frame is untouched.
func (f *Frame) SubsetIndex(rows []int) *Frame {
	out := &Frame{
		IDs:     make([]string, len(rows)),
		Columns: f.Columns,
		Numeric: make(map[string][]float64, len(f.Numeric)),
		Factor:  make(map[string][]string, len(f.Factor)),
	}
	for i, r := range rows {
		out.IDs[i] = f.IDs[r]
	}
	for name, col := range f.Numeric {
		sub := make([]float64, len(rows))
		for i, r := range rows {
			sub[i] = col[r]
		}
		out.Numeric[name] = sub
	}
	for name, col := range f.Factor {
		sub := make([]string, len(rows))
		for i, r := range rows {
			sub[i] = col[r]
		}
		out.Factor[name] = sub
	}
	return out
}

// Subset returns the rows whose identifiers appear in ids, preserving the
// order of ids. Identifiers not present in the frame are skipped.
func (f *Frame) Subset(ids []string) *Frame {
	byID := f.IndexByID()
	rows := make([]int, 0, len(ids))
	for _, id := range ids {
		if i, ok := byID[id]; ok {
			rows = append(rows, i)
		}
	}
	return f.SubsetIndex(rows)
}

// WithShuffledColumn returns a shallow copy of the frame in which the named
// column's values are reordered by perm. Every other column is shared with
// the receiver, so the copy is cheap; callers must not mutate it further.
func (f *Frame) WithShuffledColumn(name string, perm []int) (*Frame, error) {
	if len(perm) != f.Len() {
		return nil, fmt.Errorf("dataset: permutation length %d != rows %d", len(perm), f.Len())
	}
	out := &Frame{IDs: f.IDs, Columns: f.Columns}
	out.Numeric = make(map[string][]float64, len(f.Numeric))
	for k, v := range f.Numeric {
		out.Numeric[k] = v
	}
	out.Factor = make(map[string][]string, len(f.Factor))
	for k, v := range f.Factor {
		out.Factor[k] = v
	}
	if col, ok := f.Numeric[name]; ok {
		shuffled := make([]float64, len(col))
		for i, p := range perm {
			shuffled[i] = col[p]
		}
		out.Numeric[name] = shuffled
		return out, nil
	}
	if col, ok := f.Factor[name]; ok {
		shuffled := make([]string, len(col))
		for i, p := range perm {
			shuffled[i] = col[p]
		}
		out.Factor[name] = shuffled
		return out, nil
	}
	return nil, fmt.Errorf("dataset: %w: %s", ErrMissingColumn, name)
}

// Times returns the survival time column.
func (d *Dataset) Times() []float64 { return d.Frame.Numeric[d.TimeColumn] }

// Status returns the event indicator column (1 = event, 0 = censored).
func (d *Dataset) Status() []float64 { return d.Frame.Numeric[d.StatusColumn] }

// EventRate returns the fraction of rows with an observed event.
func (d *Dataset) EventRate() float64 {
	status := d.Status()
	if len(status) == 0 {
		return 0
	}
	events := 0
	for _, s := range status {
		if s == 1 {
			events++
		}
	}
	return float64(events) / float64(len(status))
}

// FeatureColumns returns every column that is neither outcome nor identifier.
func (d *Dataset) FeatureColumns() []string {
	features := make([]string, 0, len(d.Frame.Columns))
	for _, c := range d.Frame.Columns {
		if c == d.TimeColumn || c == d.StatusColumn || c == d.IDColumn {
			continue
		}
		features = append(features, c)
	}
	return features
}

// Validate checks the structural invariants: outcome and identifier columns
// present, every time strictly positive, at least one event.
func (d *Dataset) Validate() error {
	for _, required := range []string{d.TimeColumn, d.StatusColumn} {
		if _, ok := d.Frame.Numeric[required]; !ok {
			return fmt.Errorf("%w: %s (dataset %q)", ErrMissingColumn, required, d.Label)
		}
	}
	if d.IDColumn != "" && !d.Frame.HasColumn(d.IDColumn) {
		return fmt.Errorf("%w: %s (dataset %q)", ErrMissingColumn, d.IDColumn, d.Label)
	}
	if d.Frame.Len() == 0 {
		return fmt.Errorf("dataset %q is empty", d.Label)
	}
	for i, t := range d.Times() {
		if math.IsNaN(t) || t <= 0 {
			return fmt.Errorf("dataset %q: row %s has non-positive time %v", d.Label, d.Frame.IDs[i], t)
		}
	}
	events := 0
	for _, s := range d.Status() {
		if s == 1 {
			events++
		}
	}
	if events == 0 {
		return fmt.Errorf("dataset %q has no observed events", d.Label)
	}
	return nil
}

// View returns a Dataset bound to a sub-frame of the receiver, keeping the
// same column bindings. Used for per-split train/test datasets.
func (d *Dataset) View(f *Frame) *Dataset {
	return &Dataset{
		Label:        d.Label,
		TimeColumn:   d.TimeColumn,
		StatusColumn: d.StatusColumn,
		IDColumn:     d.IDColumn,
		Frame:        f,
	}
}

// signedTimeEps replaces non-positive times when building signed-time labels.
const signedTimeEps = 1e-9

// SignedTimeLabels builds a regression proxy target for survival data:
// positive time for events, negative time for censored rows. Rows with
// missing or non-positive times are clamped to a tiny epsilon.
func SignedTimeLabels(times, status []float64) []float64 {
	labels := make([]float64, len(times))
	for i, t := range times {
		if math.IsNaN(t) || t <= 0 {
			t = signedTimeEps
		}
		if status[i] == 1 {
			labels[i] = t
		} else {
			labels[i] = -t
		}
	}
	return labels
}
