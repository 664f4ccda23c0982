package search

import (
	"slices"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/hydrator"
)

// InnerHitsName is the inner hits name the hydrator flattens.
const InnerHitsName = "inner"

// BuildQuery translates criteria into an Elasticsearch search body.
func BuildQuery(c domain.Criteria) map[string]any {
	body := map[string]any{}

	var must, filter []any
	if c.Term != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":   c.Term,
				"fields":  []string{"name^3", "*"},
				"lenient": true,
			},
		})
	}
	if len(c.IDs) > 0 {
		ids := make([]string, 0, len(c.IDs))
		for _, k := range c.IDs {
			ids = append(ids, k.String())
		}
		filter = append(filter, map[string]any{"ids": map[string]any{"values": ids}})
	}
	filter = append(filter, termClauses(c.Filters)...)

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(boolQuery) == 0 {
		body["query"] = map[string]any{"match_all": map[string]any{}}
	} else {
		body["query"] = map[string]any{"bool": boolQuery}
	}

	var post map[string]any
	if len(c.PostFilters) > 0 {
		post = map[string]any{"bool": map[string]any{"filter": termClauses(c.PostFilters)}}
		body["post_filter"] = post
	}

	if len(c.GroupFields) > 0 {
		body["collapse"] = collapse(c.GroupFields)
	}

	switch {
	case c.TotalCountMode != domain.TotalCountExact:
		body["track_total_hits"] = false
	case len(c.GroupFields) == 0:
		body["track_total_hits"] = true
	default:
		count := map[string]any{"cardinality": map[string]any{"field": c.GroupFields[0]}}
		if post == nil {
			body["aggs"] = map[string]any{hydrator.TotalCountAggregation: count}
		} else {
			body["aggs"] = map[string]any{
				hydrator.FilteredTotalCountAggregation: map[string]any{
					"filter": post,
					"aggs":   map[string]any{hydrator.TotalCountAggregation: count},
				},
			}
		}
	}

	if len(c.Sorting) > 0 {
		sorts := make([]any, 0, len(c.Sorting))
		for _, s := range c.Sorting {
			order := "asc"
			if s.Descending {
				order = "desc"
			}
			sorts = append(sorts, map[string]any{s.Field: map[string]any{"order": order}})
		}
		body["sort"] = sorts
	}

	size := c.Limit
	if size <= 0 && len(c.IDs) > 0 {
		size = len(c.IDs)
	}
	if size > 0 {
		body["size"] = size
	}
	if c.Offset > 0 {
		body["from"] = c.Offset
	}
	return body
}

// collapse groups on the first field and nests the remaining ones through
// named inner hits.
func collapse(fields []string) map[string]any {
	out := map[string]any{"field": fields[0]}
	if len(fields) > 1 {
		out["inner_hits"] = map[string]any{
			"name":     InnerHitsName,
			"collapse": collapse(fields[1:]),
		}
	}
	return out
}

func termClauses(filters map[string]any) []any {
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	clauses := make([]any, 0, len(fields))
	for _, f := range fields {
		switch v := filters[f].(type) {
		case []any, []string:
			clauses = append(clauses, map[string]any{"terms": map[string]any{f: v}})
		default:
			clauses = append(clauses, map[string]any{"term": map[string]any{f: v}})
		}
	}
	return clauses
}
