package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

var (
	importDelete   bool
	importSkip     []string
	importLanguage string
)

var importCmd = &cobra.Command{
	Use:   "import <entity> <file>",
	Short: "Write records to the primary store and publish the write",
	Long: `Upsert the records in <file> ("-" for stdin), a JSON array of
{"id": "...", "fields": {...}}, into the primary store and publish the
resulting write event. With --delete the file is a JSON array of ids to remove.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importDelete, "delete", false, "Delete the listed ids instead of upserting")
	importCmd.Flags().StringSliceVar(&importSkip, "skip", nil, "Indexers or enrichers to skip")
	importCmd.Flags().StringVar(&importLanguage, "language", "", "Language the write was made in")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	entity, path := args[0], args[1]

	r := cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var event domain.WriteEvent
	if importDelete {
		ids, err := decodeList[string](r)
		if err != nil {
			return err
		}
		if event, err = a.Store.Delete(ctx, entity, ids); err != nil {
			return err
		}
	} else {
		records, err := decodeList[domain.Record](r)
		if err != nil {
			return err
		}
		if event, err = a.Store.Upsert(ctx, entity, records); err != nil {
			return err
		}
	}

	event.Context.LanguageID = importLanguage

	n, err := a.Publisher().Publish(ctx, event, importSkip)
	fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) changed, %d indexing message(s) dispatched\n", len(event.Changes), n)
	return err
}

func decodeList[T any](r io.Reader) ([]T, error) {
	var out []T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return out, nil
}
