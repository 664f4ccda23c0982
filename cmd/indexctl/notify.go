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
	notifyEntity   string
	notifyIDs      []string
	notifyFields   []string
	notifyDeleted  bool
	notifyFile     string
	notifySkip     []string
	notifyLanguage string
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Publish a write event as incremental indexing messages",
	Long: `Publish a primary-store write event. The event is either described with
--entity/--ids/--fields (or --deleted), or read as JSON from --file ("-" for
stdin) in the form {"entity": "...", "changes": [{"id": "...", "fields": [...]}]}.`,
	Args: cobra.NoArgs,
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().StringVar(&notifyEntity, "entity", "", "Written entity type")
	notifyCmd.Flags().StringSliceVar(&notifyIDs, "ids", nil, "Written row ids")
	notifyCmd.Flags().StringSliceVar(&notifyFields, "fields", nil, "Fields touched by the write")
	notifyCmd.Flags().BoolVar(&notifyDeleted, "deleted", false, "The rows were deleted")
	notifyCmd.Flags().StringVar(&notifyFile, "file", "", "Read the event as JSON from this file")
	notifyCmd.Flags().StringSliceVar(&notifySkip, "skip", nil, "Indexers or enrichers to skip")
	notifyCmd.Flags().StringVar(&notifyLanguage, "language", "", "Language id of the read context")
	rootCmd.AddCommand(notifyCmd)
}

func runNotify(cmd *cobra.Command, _ []string) error {
	event, err := notifyEvent(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Publisher().Publish(ctx, event, notifySkip)
	fmt.Fprintf(cmd.OutOrStdout(), "%d indexing message(s) dispatched\n", n)
	return err
}

func notifyEvent(stdin io.Reader) (domain.WriteEvent, error) {
	if notifyFile != "" {
		r := stdin
		if notifyFile != "-" {
			f, err := os.Open(notifyFile)
			if err != nil {
				return domain.WriteEvent{}, err
			}
			defer f.Close()
			r = f
		}
		return decodeEvent(r)
	}
	return buildEvent(notifyEntity, notifyIDs, notifyFields, notifyDeleted, notifyLanguage)
}

func decodeEvent(r io.Reader) (domain.WriteEvent, error) {
	var event domain.WriteEvent
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return domain.WriteEvent{}, fmt.Errorf("decode write event: %w", err)
	}
	if event.Entity == "" {
		return domain.WriteEvent{}, fmt.Errorf("write event without entity")
	}
	return event, nil
}

func buildEvent(entity string, ids, fields []string, deleted bool, language string) (domain.WriteEvent, error) {
	if entity == "" || len(ids) == 0 {
		return domain.WriteEvent{}, fmt.Errorf("--entity and --ids are required without --file")
	}
	if !deleted && len(fields) == 0 {
		return domain.WriteEvent{}, fmt.Errorf("--fields is required unless --deleted is set")
	}
	event := domain.WriteEvent{
		Entity:  entity,
		Context: domain.Snapshot{LanguageID: language},
	}
	for _, id := range ids {
		event.Changes = append(event.Changes, domain.Change{ID: id, Fields: fields, Deleted: deleted})
	}
	return event, nil
}
