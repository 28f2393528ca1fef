package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "survbench",
		Short: "survbench - Monte Carlo cross-validation for survival models",
		Long: `survbench benchmarks survival model families on a cohort using
repeated train/test splits.

Each split fits every configured model family, scores the held-out rows with
Harrell's and Uno's concordance, and optionally measures permutation feature
importance. Results aggregate to per-model confidence intervals and a
deterministic model selection.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newProgressCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
