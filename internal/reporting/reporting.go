// Package reporting writes run artifacts: CSV exports of metric and
// importance tables, the selection decision as JSON, and human-readable
// terminal tables.
package reporting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/graftlab/survbench/internal/models"
)

// WriteMetricsCSV exports per-split metric records.
func WriteMetricsCSV(path string, records []models.MetricRecord) error {
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"dataset", "split", "model", "metric", "value", "fallback"}); err != nil {
			return err
		}
		for _, r := range records {
			row := []string{
				r.Dataset,
				strconv.Itoa(r.Split),
				r.Model,
				r.Metric,
				formatValue(r.Value),
				strconv.FormatBool(r.Fallback),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSummaryCSV exports the aggregate summary table.
func WriteSummaryCSV(path string, summaries []models.AggregateSummary) error {
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"model", "metric", "n_splits", "mean", "sd", "ci_lower", "ci_upper", "ci_level"}); err != nil {
			return err
		}
		for _, s := range summaries {
			row := []string{
				s.Model,
				s.Metric,
				strconv.Itoa(s.NSplits),
				formatValue(s.Mean),
				formatValue(s.SD),
				formatValue(s.CILower),
				formatValue(s.CIUpper),
				formatValue(s.Level),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteModelImportanceCSV exports per-model mean importance.
func WriteModelImportanceCSV(path string, rows []models.ModelImportance) error {
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"model", "feature", "mean", "normalized"}); err != nil {
			return err
		}
		for _, r := range rows {
			row := []string{r.Model, r.Feature, formatValue(r.Mean), formatValue(r.Normalized)}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteUnionImportanceCSV exports the fused importance table. Model columns
// appear in sorted order; a model that never scored a feature leaves its
// cells empty.
func WriteUnionImportanceCSV(path string, union []models.UnionImportanceRecord) error {
	modelSet := make(map[string]bool)
	for _, u := range union {
		for model := range u.RawMean {
			modelSet[model] = true
		}
	}
	modelNames := make([]string, 0, len(modelSet))
	for model := range modelSet {
		modelNames = append(modelNames, model)
	}
	sort.Strings(modelNames)

	return writeCSV(path, func(w *csv.Writer) error {
		header := []string{"feature", "rank", "combined"}
		for _, model := range modelNames {
			header = append(header, "raw_"+model, "norm_"+model)
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, u := range union {
			row := []string{u.Feature, strconv.Itoa(u.Rank), formatValue(u.Combined)}
			for _, model := range modelNames {
				if raw, ok := u.RawMean[model]; ok {
					row = append(row, formatValue(raw), formatValue(u.Normalized[model]))
				} else {
					row = append(row, "", "")
				}
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteDecision persists the selection decision as indented JSON.
func WriteDecision(path string, decision *models.SelectionDecision) error {
	data, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing decision: %w", err)
	}
	return nil
}

// ReadDecision loads a previously written selection decision.
func ReadDecision(path string) (*models.SelectionDecision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading decision: %w", err)
	}
	var decision models.SelectionDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, fmt.Errorf("parsing decision: %w", err)
	}
	return &decision, nil
}

// RenderSummaryTable prints the aggregate summaries as a terminal table.
func RenderSummaryTable(w io.Writer, summaries []models.AggregateSummary) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Model", "Metric", "Splits", "Mean", "SD", "95% CI"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, s := range summaries {
		ci := "-"
		if !math.IsNaN(s.CILower) {
			ci = fmt.Sprintf("[%.4f, %.4f]", s.CILower, s.CIUpper)
		}
		data = append(data, []string{
			s.Model,
			s.Metric,
			strconv.Itoa(s.NSplits),
			formatCell(s.Mean),
			formatCell(s.SD),
			ci,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// RenderImportanceTable prints the top fused importance rows.
func RenderImportanceTable(w io.Writer, union []models.UnionImportanceRecord, top int) error {
	if top <= 0 || top > len(union) {
		top = len(union)
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Feature", "Combined", "Models"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, u := range union[:top] {
		data = append(data, []string{
			strconv.Itoa(u.Rank),
			u.Feature,
			formatCell(u.Combined),
			strconv.Itoa(len(u.RawMean)),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// RenderDecision prints the selection outcome and its decision path.
func RenderDecision(w io.Writer, decision *models.SelectionDecision) {
	fmt.Fprintf(w, "Chosen model: %s (rule: %s)\n", decision.Chosen, decision.Rule)
	fmt.Fprintf(w, "Ranking: %v\n", decision.Ranked)
	fmt.Fprintln(w, "Decision path:")
	for i, step := range decision.Path {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}

func writeCSV(path string, fill func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}

// formatValue keeps full float precision in CSV exports; NaN becomes the
// literal "NA" so downstream spreadsheet tools do not choke.
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}
