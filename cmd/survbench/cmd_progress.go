package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/graftlab/survbench/internal/progress"
	"github.com/graftlab/survbench/internal/projectconfig"
)

func newProgressCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "progress [experiment.yaml]",
		Short: "Show the latest progress snapshot of a running experiment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				if len(args) == 0 {
					return fmt.Errorf("either an experiment file or --file is required")
				}
				exp, err := projectconfig.Load(args[0])
				if err != nil {
					return err
				}
				resolveExperimentPaths(exp, args[0])
				path = progressPath(exp)
			}

			snap, err := progress.Read(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dataset:  %s\n", snap.Dataset)
			fmt.Fprintf(out, "Step:     %s\n", snap.Step)
			fmt.Fprintf(out, "Progress: %d/%d (%.1f%%)\n", snap.Done, snap.Total, snap.Percent)
			fmt.Fprintf(out, "Elapsed:  %s\n", (time.Duration(snap.ElapsedSec * float64(time.Second))).Round(time.Second))
			if snap.AvgSplitSec > 0 {
				fmt.Fprintf(out, "Avg/split: %.1fs\n", snap.AvgSplitSec)
				fmt.Fprintf(out, "ETA:       %s\n", (time.Duration(snap.ETASec * float64(time.Second))).Round(time.Second))
			}
			fmt.Fprintf(out, "Updated:  %s\n", snap.Timestamp.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Progress file to read (overrides the experiment's output settings)")
	return cmd
}
