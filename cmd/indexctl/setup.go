package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create missing search indices with their mapping",
	Args:  cobra.NoArgs,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, idx := range a.Registry.Indexers() {
		created, err := a.Backend.EnsureIndex(ctx, idx.Index(), idx.Mapping())
		if err != nil {
			return fmt.Errorf("set up %s: %w", idx.Name(), err)
		}
		state := "exists"
		if created {
			state = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-28s %s\n", idx.Name(), idx.Index(), state)
	}
	return nil
}
