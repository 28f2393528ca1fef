package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/graftlab/survbench/internal/aggregate"
	"github.com/graftlab/survbench/internal/engine"
	"github.com/graftlab/survbench/internal/projectconfig"
	"github.com/graftlab/survbench/internal/reporting"
	"github.com/graftlab/survbench/internal/results"
	"github.com/graftlab/survbench/internal/selection"
	"github.com/graftlab/survbench/internal/survival"
)

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <experiment.yaml>",
		Short: "Aggregate persisted split records and select a model",
		Long: `Aggregate every split record persisted for the experiment's dataset,
write the summary and importance tables as CSV, and run the model selector.

Records appended by multiple runs (for example resumed ranges) deduplicate
by split, so overlapping runs are safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := projectconfig.Load(args[0])
			if err != nil {
				return err
			}
			resolveExperimentPaths(exp, args[0])
			store, err := results.NewStore(exp.Output.Dir)
			if err != nil {
				return err
			}
			return buildReport(cmd.OutOrStdout(), exp, store)
		},
	}
}

// buildReport is shared by run and report: it reduces everything in the
// store to summary tables, fuses importance, runs the selector and writes
// all artifacts next to the records.
func buildReport(w io.Writer, exp *projectconfig.Experiment, store *results.Store) error {
	label := exp.Dataset.Label
	metrics, err := store.LoadMetrics(label)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		return fmt.Errorf("no metric records for dataset %q in %s", label, store.Dir())
	}
	importances, err := store.LoadImportances(label)
	if err != nil {
		return err
	}

	level := exp.Engine.ConfidenceLevel
	if level <= 0 || level >= 1 {
		level = engine.DefaultConfidenceLevel
	}
	primary := exp.Engine.PrimaryMetric
	if primary == "" {
		primary = survival.MetricHarrellC
	}
	epsilon := exp.Engine.TieEpsilon
	if epsilon <= 0 {
		epsilon = engine.DefaultTieEpsilon
	}

	summaries := aggregate.Summarize(metrics, level)
	perModel, union := aggregate.FuseImportance(importances)

	dir := store.Dir()
	if err := reporting.WriteMetricsCSV(filepath.Join(dir, label+"_metrics.csv"), metrics); err != nil {
		return err
	}
	if err := reporting.WriteSummaryCSV(filepath.Join(dir, label+"_summary.csv"), summaries); err != nil {
		return err
	}
	if len(perModel) > 0 {
		if err := reporting.WriteModelImportanceCSV(filepath.Join(dir, label+"_importance.csv"), perModel); err != nil {
			return err
		}
		if err := reporting.WriteUnionImportanceCSV(filepath.Join(dir, label+"_importance_union.csv"), union); err != nil {
			return err
		}
	}

	if err := reporting.RenderSummaryTable(w, summaries); err != nil {
		return err
	}
	if len(union) > 0 {
		if err := reporting.RenderImportanceTable(w, union, engine.DefaultTopKImportance); err != nil {
			return err
		}
	}

	decision, err := selection.Select(label, summaries, union, primary, epsilon)
	if err != nil {
		return err
	}
	decisionPath := filepath.Join(dir, label+"_selection.json")
	if err := reporting.WriteDecision(decisionPath, decision); err != nil {
		return err
	}
	reporting.RenderDecision(w, decision)
	for _, s := range summaries {
		if s.Model == decision.Chosen && s.Metric == primary {
			fmt.Fprintln(w, reporting.InterpretSummary(s.Model, s.Metric, s.Mean))
		}
	}
	slog.Info("report complete",
		"dataset", label, "chosen", decision.Chosen, "rule", decision.Rule,
		"decision_file", decisionPath)
	return nil
}
