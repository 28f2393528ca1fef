package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/graftlab/survbench/internal/adapters"
	"github.com/graftlab/survbench/internal/dataset"
	"github.com/graftlab/survbench/internal/engine"
	"github.com/graftlab/survbench/internal/partition"
	"github.com/graftlab/survbench/internal/progress"
	"github.com/graftlab/survbench/internal/projectconfig"
	"github.com/graftlab/survbench/internal/results"
	"github.com/graftlab/survbench/internal/spinner"
	"github.com/graftlab/survbench/internal/utils"
	"github.com/spf13/pflag"
)

var (
	runStartAt      int
	runMaxSplits    int
	runWorkers      int
	runHorizon      float64
	runTimeoutSec   int
	runOutDir       string
	runExportSplits string
	runSkipReport   bool
	runQuiet        bool
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <experiment.yaml>",
		Short: "Run a Monte Carlo cross-validation experiment",
		Long: `Run an experiment from a YAML definition.

The definition binds the cohort CSV, the split plan and the model roster.
Per-split records append to the results directory, so an interrupted run can
resume with --start-at without recomputing finished splits.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().IntVar(&runStartAt, "start-at", 0, "1-based first split to run (overrides experiment file)")
	cmd.Flags().IntVar(&runMaxSplits, "max-splits", 0, "Max splits this invocation (overrides experiment file)")
	cmd.Flags().IntVar(&runWorkers, "workers", 0, "Number of concurrent split workers (overrides experiment file)")
	cmd.Flags().Float64Var(&runHorizon, "horizon", 0, "Evaluation horizon for Uno's C (overrides experiment file)")
	cmd.Flags().IntVar(&runTimeoutSec, "split-timeout", 0, "Per-split timeout in seconds (overrides experiment file)")
	cmd.Flags().StringVar(&runOutDir, "out-dir", "", "Results directory (overrides experiment file)")
	cmd.Flags().StringVar(&runExportSplits, "export-splits", "", "Write the generated split plan to this JSON file")
	cmd.Flags().BoolVar(&runSkipReport, "no-report", false, "Skip aggregation and selection after the run")
	cmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Disable the terminal spinner")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	exp, err := projectconfig.Load(args[0])
	if err != nil {
		return err
	}
	applyRunOverrides(exp, cmd.Flags())
	resolveExperimentPaths(exp, args[0])

	runID := uuid.NewString()
	slog.Info("loading cohort", "run_id", runID, "path", exp.Dataset.Path)

	ds, err := dataset.FromCSV(exp.Dataset.Path, exp.Dataset.Label,
		exp.Dataset.TimeColumn, exp.Dataset.StatusColumn, exp.Dataset.IDColumn)
	if err != nil {
		return fmt.Errorf("loading cohort: %w", err)
	}

	splits, err := buildSplits(exp, ds)
	if err != nil {
		return err
	}
	if runExportSplits != "" {
		if err := partition.SaveBaseTestIDs(runExportSplits, splits); err != nil {
			return err
		}
		slog.Info("exported split plan", "path", runExportSplits, "splits", len(splits))
	}

	registry, err := adapters.New(exp.Models)
	if err != nil {
		return err
	}

	scheduler, err := engine.NewScheduler(exp.EngineConfig(), ds, exp.Dataset.Features, registry, nil)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(exp.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	reporter := progress.NewReporter(progressPath(exp))
	scheduler.OnProgress(reporter.Listener())

	var sp *spinner.Spinner
	if !runQuiet {
		sp = spinner.Start(os.Stderr, fmt.Sprintf("running %d splits", len(splits)))
		defer sp.Stop()
		scheduler.OnProgress(func(ev engine.ProgressEvent) {
			if ev.EventType == engine.EventSplitComplete || ev.EventType == engine.EventSplitSkipped {
				sp.Update(fmt.Sprintf("split %d/%d done", ev.Done, ev.Total))
			}
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	bundles, err := scheduler.Run(ctx, splits)
	if sp != nil {
		sp.Stop()
	}
	if err != nil {
		return err
	}

	store, err := results.NewStore(exp.Output.Dir)
	if err != nil {
		return err
	}
	if err := store.AppendBundles(exp.Dataset.Label, bundles); err != nil {
		return err
	}
	slog.Info("persisted split records",
		"run_id", runID, "splits", len(bundles),
		"elapsed", time.Since(started).Round(time.Millisecond))

	if runSkipReport {
		return nil
	}
	return buildReport(cmd.OutOrStdout(), exp, store)
}

func applyRunOverrides(exp *projectconfig.Experiment, flags *pflag.FlagSet) {
	if flags.Changed("start-at") {
		exp.Engine.StartAt = runStartAt
	}
	if flags.Changed("max-splits") {
		exp.Engine.MaxSplits = runMaxSplits
	}
	if flags.Changed("workers") {
		exp.Engine.Workers = runWorkers
	}
	if flags.Changed("horizon") {
		exp.Engine.Horizon = runHorizon
	}
	if flags.Changed("split-timeout") {
		exp.Engine.SplitTimeoutSec = runTimeoutSec
	}
	if flags.Changed("out-dir") {
		exp.Output.Dir = runOutDir
	}
}

// buildSplits either generates fresh splits or remaps an exported plan onto
// this cohort.
func buildSplits(exp *projectconfig.Experiment, ds *dataset.Dataset) ([]partition.Split, error) {
	if exp.Splits.BaseFile == "" {
		return partition.GenerateSplits(ds, exp.Splits.Count,
			exp.Splits.TrainFraction, exp.Splits.Strata, exp.Splits.Seed)
	}

	baseTestIDs, err := partition.LoadBaseTestIDs(exp.Splits.BaseFile)
	if err != nil {
		return nil, err
	}
	splits, dropped, err := partition.RemapSplits(baseTestIDs, ds,
		exp.Splits.MinTestRows, exp.Splits.MinTestEvents)
	if err != nil {
		return nil, err
	}
	slog.Info("remapped base splits",
		"base", exp.Splits.BaseFile, "usable", len(splits), "dropped", dropped)
	return splits, nil
}

// resolveExperimentPaths rebinds the experiment's relative paths to the
// experiment file's directory, so run, report and progress all see the same
// locations regardless of the working directory.
func resolveExperimentPaths(exp *projectconfig.Experiment, expPath string) {
	resolved := utils.ResolvePaths(
		[]string{exp.Dataset.Path, exp.Splits.BaseFile, exp.Output.Dir},
		filepath.Dir(expPath))
	exp.Dataset.Path, exp.Splits.BaseFile, exp.Output.Dir = resolved[0], resolved[1], resolved[2]
}

func progressPath(exp *projectconfig.Experiment) string {
	if filepath.IsAbs(exp.Output.ProgressFile) || filepath.Dir(exp.Output.ProgressFile) != "." {
		return exp.Output.ProgressFile
	}
	return filepath.Join(exp.Output.Dir, exp.Output.ProgressFile)
}
