// Package hydrator turns raw search backend responses into ordered,
// deduplicated results.
package hydrator

import (
	"fmt"
	"strings"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

// Aggregation names the query builder requests for grouped total counts.
const (
	TotalCountAggregation         = "total-count"
	FilteredTotalCountAggregation = "total-filtered-count"
)

// Hydrate builds the result for criteria from a raw backend response. A
// response without hits yields an empty result with total 0.
func Hydrate(criteria domain.Criteria, raw map[string]any) *domain.HydratedResult {
	hitsObj, _ := raw["hits"].(map[string]any)
	if hitsObj == nil {
		return domain.NewHydratedResult(0, criteria)
	}
	topHits, _ := hitsObj["hits"].([]any)

	data := domain.NewHydratedResult(0, criteria)
	for _, hit := range Flatten(topHits) {
		id := stringValue(hit["_id"])
		if id == "" {
			continue
		}
		score := floatValue(hit["_score"])

		source := map[string]any{}
		if src, ok := hit["_source"].(map[string]any); ok {
			for k, v := range src {
				source[k] = v
			}
		}
		source["id"] = id
		source["_score"] = score
		data.Set(id, domain.HydratedEntry{PrimaryKey: id, Data: source, Score: score})
	}

	total := Total(criteria, raw, len(topHits))

	if !criteria.UseIDSorting() {
		data.Total = total
		return data
	}

	sorted := domain.NewHydratedResult(total, criteria)
	for _, key := range criteria.IDs {
		id := key.String()
		if entry, ok := data.Get(id); ok {
			sorted.Set(id, entry)
		}
	}
	return sorted
}

// Flatten replaces every hit carrying inner hits with those inner hits,
// recursively, keeping encounter order.
func Flatten(hits []any) []map[string]any {
	var out []map[string]any
	for _, h := range hits {
		hit, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if inner, ok := innerHits(hit); ok {
			out = append(out, Flatten(inner)...)
			continue
		}
		out = append(out, hit)
	}
	return out
}

func innerHits(hit map[string]any) ([]any, bool) {
	ih, ok := hit["inner_hits"].(map[string]any)
	if !ok {
		return nil, false
	}
	inner, ok := ih["inner"].(map[string]any)
	if !ok {
		return nil, false
	}
	hits, ok := inner["hits"].(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := hits["hits"].([]any)
	return list, ok
}

// Total applies the total count policy of criteria. returned is the number
// of top-level hits in the page, used whenever an exact count is not asked
// for or the expected counter is missing from the response.
func Total(criteria domain.Criteria, raw map[string]any, returned int) int {
	if criteria.TotalCountMode != domain.TotalCountExact {
		return returned
	}

	if len(criteria.GroupFields) == 0 {
		hits, _ := raw["hits"].(map[string]any)
		switch t := hits["total"].(type) {
		case map[string]any:
			if v, ok := numberValue(t["value"]); ok {
				return v
			}
		default:
			if v, ok := numberValue(t); ok {
				return v
			}
		}
		return returned
	}

	aggs, _ := raw["aggregations"].(map[string]any)
	if len(criteria.PostFilters) == 0 {
		if v, ok := aggregationValue(aggs, TotalCountAggregation); ok {
			return v
		}
		return returned
	}

	filtered, _ := aggs[FilteredTotalCountAggregation].(map[string]any)
	if v, ok := aggregationValue(filtered, TotalCountAggregation); ok {
		return v
	}
	return returned
}

func aggregationValue(aggs map[string]any, name string) (int, bool) {
	agg, ok := aggs[name].(map[string]any)
	if !ok {
		return 0, false
	}
	return numberValue(agg["value"])
}

func numberValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case []any:
		parts := make([]string, len(s))
		for i, p := range s {
			parts[i] = stringValue(p)
		}
		return strings.Join(parts, domain.KeySeparator)
	default:
		return fmt.Sprint(s)
	}
}
