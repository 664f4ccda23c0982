package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexers, their row counts, the current run and drift",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runID, err := a.Runs.Current(ctx)
	if err != nil {
		return err
	}
	drifted, err := a.Drift.Load(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runID == "" {
		runID = "none"
	}
	fmt.Fprintf(out, "current run: %s\n\n", runID)
	for _, idx := range a.Registry.Indexers() {
		total, err := idx.Total(ctx)
		if err != nil {
			return fmt.Errorf("count %s: %w", idx.Entity(), err)
		}
		mark := ""
		if slices.Contains(drifted, idx.Entity()) {
			mark = "  (mapping drift)"
		}
		fmt.Fprintf(out, "%-24s %-28s %8d rows%s\n", idx.Name(), idx.Index(), total, mark)
	}
	return nil
}
