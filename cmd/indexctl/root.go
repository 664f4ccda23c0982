package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nimafallahian/go-indexer/internal/app"
	"github.com/nimafallahian/go-indexer/internal/config"
	"github.com/nimafallahian/go-indexer/internal/logging"
)

var (
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "indexctl",
	Short: "Operate the search indexing pipeline",
	Long: `indexctl prepares search indices, pushes mappings, starts and resets full
reindex runs, publishes write events and queries the search backend.

Connection settings are read from the same environment variables as the
indexer daemon (KAFKA_BROKERS, ELASTIC_URLS, STORE_PATH, STATE_PATH, ...).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR); defaults to LOG_LEVEL")
}

// openApp loads the environment configuration and opens every component.
// Logs go to stderr so stdout stays parseable.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logger := logging.New(os.Stderr, level, logging.FormatText)
	return app.Open(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
