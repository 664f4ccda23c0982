package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

var (
	searchTerm        string
	searchIDs         []string
	searchFilters     []string
	searchPostFilters []string
	searchGroup       []string
	searchSort        []string
	searchLimit       int
	searchOffset      int
	searchExact       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <indexer>",
	Short: "Query the index of an indexer and print hydrated results",
	Long: `Query the index written by <indexer> and print the hydrated, deduplicated
result page as JSON.

Filters are field=value pairs; repeating a field matches any of its values.
Sorting takes field or field:desc.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchTerm, "term", "", "Full-text search term")
	searchCmd.Flags().StringSliceVar(&searchIDs, "ids", nil, "Restrict to these document ids, returned in this order")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "field=value filter")
	searchCmd.Flags().StringArrayVar(&searchPostFilters, "post-filter", nil, "field=value filter applied after grouping")
	searchCmd.Flags().StringSliceVar(&searchGroup, "group", nil, "Fields to group results by")
	searchCmd.Flags().StringSliceVar(&searchSort, "sort", nil, "field or field:desc")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 25, "Page size")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Page offset")
	searchCmd.Flags().BoolVar(&searchExact, "exact", false, "Compute the exact total count")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	criteria, err := searchCriteria()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.Registry.Get(args[0])
	if err != nil {
		return err
	}
	searcher, err := a.Searcher()
	if err != nil {
		return err
	}
	result, err := searcher.Search(ctx, idx.Index(), criteria)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func searchCriteria() (domain.Criteria, error) {
	filters, err := parseFilters(searchFilters)
	if err != nil {
		return domain.Criteria{}, err
	}
	postFilters, err := parseFilters(searchPostFilters)
	if err != nil {
		return domain.Criteria{}, err
	}
	sorting, err := parseSort(searchSort)
	if err != nil {
		return domain.Criteria{}, err
	}

	c := domain.Criteria{
		Term:        searchTerm,
		Filters:     filters,
		PostFilters: postFilters,
		GroupFields: searchGroup,
		Sorting:     sorting,
		Limit:       searchLimit,
		Offset:      searchOffset,
	}
	for _, id := range searchIDs {
		c.IDs = append(c.IDs, domain.Key{id})
	}
	if searchExact {
		c.TotalCountMode = domain.TotalCountExact
	}
	return c, nil
}

// parseFilters turns field=value pairs into term filters. Repeated fields
// become a terms filter. Values that parse as numbers or booleans keep their
// type.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := map[string]any{}
	for _, p := range pairs {
		field, raw, ok := strings.Cut(p, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", p)
		}
		value := filterValue(raw)
		switch existing := out[field].(type) {
		case nil:
			out[field] = value
		case []any:
			out[field] = append(existing, value)
		default:
			out[field] = []any{existing, value}
		}
	}
	return out, nil
}

func filterValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func parseSort(values []string) ([]domain.Sort, error) {
	var out []domain.Sort
	for _, s := range values {
		field, dir, _ := strings.Cut(s, ":")
		if field == "" {
			return nil, fmt.Errorf("invalid sort %q", s)
		}
		switch strings.ToLower(dir) {
		case "", "asc":
			out = append(out, domain.Sort{Field: field})
		case "desc":
			out = append(out, domain.Sort{Field: field, Descending: true})
		default:
			return nil, fmt.Errorf("invalid sort direction %q in %q", dir, s)
		}
	}
	return out, nil
}
