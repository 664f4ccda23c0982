package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/service"
)

var (
	reindexOnly            []string
	reindexSkip            []string
	reindexPrioritizeDrift bool
	reindexLanguage        string
	reindexVersion         string
	reindexTenant          string
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Start a full reindex run",
	Long: `Start a full reindex. The run is carried by a chain of queue messages
processed by the indexer daemon; starting a new run abandons the previous one.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().StringSliceVar(&reindexOnly, "only", nil, "Indexers to run, in order (default: all)")
	reindexCmd.Flags().StringSliceVar(&reindexSkip, "skip", nil, "Indexers or enrichers to skip")
	reindexCmd.Flags().BoolVar(&reindexPrioritizeDrift, "prioritize-drift", false, "Run indexers of drifted entities first")
	reindexCmd.Flags().StringVar(&reindexLanguage, "language", "", "Language id of the read context")
	reindexCmd.Flags().StringVar(&reindexVersion, "version", "", "Version id of the read context")
	reindexCmd.Flags().StringVar(&reindexTenant, "tenant", "", "Tenant id of the read context")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	seed, err := a.Reindexer().Start(ctx, service.StartOptions{
		Only: reindexOnly,
		Skip: reindexSkip,
		Context: domain.Snapshot{
			LanguageID: reindexLanguage,
			VersionID:  reindexVersion,
			TenantID:   reindexTenant,
		},
		PrioritizeDrift: reindexPrioritizeDrift,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s started (trace %s): %v\n", seed.RunID, seed.TraceID, seed.Remaining)
	return nil
}
