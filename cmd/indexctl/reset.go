package main

import (
	"github.com/spf13/cobra"
)

var resetRecreate bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Abandon the running reindex and forget mapping drift",
	Long: `Abandon any in-flight full reindex and clear the drift record. With
--recreate every index is dropped and created again from its declared mapping,
which resolves drift that a mapping push cannot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Reindexer().Reset(ctx, resetRecreate)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetRecreate, "recreate", false, "Drop and recreate every index")
	rootCmd.AddCommand(resetCmd)
}
