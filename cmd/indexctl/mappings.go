package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Push declared mappings and record drifted entities",
	Long: `Push the declared field mapping of every indexer. Fields whose stored type
cannot be changed mark their entity as drifted; run a full reindex with
--prioritize-drift (after recreating the index) to resolve them.`,
	Args: cobra.NoArgs,
	RunE: runMappings,
}

func init() {
	rootCmd.AddCommand(mappingsCmd)
}

func runMappings(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, updateErr := a.Updater().Update(ctx)

	out := cmd.OutOrStdout()
	for _, name := range report.Pushed {
		fmt.Fprintf(out, "pushed    %s\n", name)
	}
	for _, c := range report.Conflicts {
		fmt.Fprintf(out, "conflict  %s (%s): %s\n", c.Indexer, c.Index, c.Reason)
	}
	if len(report.Drift) > 0 {
		fmt.Fprintf(out, "drifted entities: %v\n", report.Drift)
	}
	return updateErr
}
