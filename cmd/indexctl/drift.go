package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Inspect or clear the mapping drift record",
}

var driftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List entities whose mapping drifted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		set, err := a.Drift.Load(ctx)
		if err != nil {
			return err
		}
		if len(set) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no drift")
			return nil
		}
		for _, entity := range set {
			fmt.Fprintln(cmd.OutOrStdout(), entity)
		}
		return nil
	},
}

var driftClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every drifted entity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Drift.Clear(ctx)
	},
}

func init() {
	driftCmd.AddCommand(driftShowCmd, driftClearCmd)
	rootCmd.AddCommand(driftCmd)
}
