package indexer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

// Indexer and enricher names. The order of Definitions is the order of a full
// reindex: the category listing runs before the product search index that
// denormalises category data.
const (
	CategoryIndexer      = "category.listing"
	ProductIndexer       = "product.search"
	PaymentMethodIndexer = "payment_method.name"

	ProductKeywordsEnricher    = "product.keywords"
	CategoryBreadcrumbEnricher = "category.breadcrumb"
)

// Definitions returns the built-in entity definitions with index names prefixed
// by prefix. The category listing is kept in languages; with none given it
// holds only default-language documents.
func Definitions(prefix string, languages ...string) []Definition {
	name := func(entity string) string {
		if prefix == "" {
			return entity
		}
		return prefix + "_" + entity
	}

	if len(languages) == 0 {
		languages = []string{""}
	}

	return []Definition{
		{
			Name:      CategoryIndexer,
			Entity:    "category",
			Index:     name("category"),
			Fields:    []string{"name", "breadcrumb", "visible", "parent_id"},
			Languages: slices.Clone(languages),
			Mapping: domain.Mapping{
				"id":              {Type: domain.FieldKeyword},
				"category_id":     {Type: domain.FieldKeyword},
				"language_id":     {Type: domain.FieldKeyword},
				"name":            {Type: domain.FieldText},
				"parent_id":       {Type: domain.FieldKeyword},
				"breadcrumb":      {Type: domain.FieldKeyword},
				"breadcrumb_text": {Type: domain.FieldText},
				"visible":         {Type: domain.FieldBoolean},
			},
			// one listing document per category and language
			DocumentKey: func(id string, snap domain.Snapshot) domain.Key {
				if snap.LanguageID == "" {
					return domain.Key{id}
				}
				return domain.Key{id, snap.LanguageID}
			},
			Build: buildCategory,
			Enrichers: []Enricher{{
				Name: CategoryBreadcrumbEnricher,
				Apply: func(doc *domain.Document, _ domain.Record, _ domain.Snapshot) {
					if crumbs, ok := doc.Source["breadcrumb"].([]string); ok {
						doc.Source["breadcrumb_text"] = strings.Join(crumbs, " > ")
					}
				},
			}},
		},
		{
			Name:   ProductIndexer,
			Entity: "product",
			Index:  name("product"),
			Fields: []string{"name", "description", "price", "stock", "active", "category_ids", "manufacturer"},
			Mapping: domain.Mapping{
				"id":           {Type: domain.FieldKeyword},
				"name":         {Type: domain.FieldText},
				"description":  {Type: domain.FieldText},
				"price":        {Type: domain.FieldDouble},
				"stock":        {Type: domain.FieldLong},
				"available":    {Type: domain.FieldBoolean},
				"category_ids": {Type: domain.FieldKeyword},
				"manufacturer": {Type: domain.FieldKeyword},
				"keywords":     {Type: domain.FieldKeyword},
			},
			Build: buildProduct,
			Enrichers: []Enricher{{
				Name: ProductKeywordsEnricher,
				Apply: func(doc *domain.Document, _ domain.Record, _ domain.Snapshot) {
					doc.Source["keywords"] = keywords(doc.Source["name"], doc.Source["manufacturer"])
				},
			}},
		},
		{
			Name:   PaymentMethodIndexer,
			Entity: "payment_method",
			Index:  name("payment_method"),
			Fields: []string{"name", "active", "position"},
			Mapping: domain.Mapping{
				"id":       {Type: domain.FieldKeyword},
				"name":     {Type: domain.FieldText},
				"active":   {Type: domain.FieldBoolean},
				"position": {Type: domain.FieldLong},
			},
			Build: func(rec domain.Record, snap domain.Snapshot) map[string]any {
				return map[string]any{
					"id":       rec.ID,
					"name":     asString(translated(rec.Fields["name"], snap.LanguageID)),
					"active":   asBool(rec.Fields["active"]),
					"position": asInt(rec.Fields["position"]),
				}
			},
		},
	}
}

func buildCategory(rec domain.Record, snap domain.Snapshot) map[string]any {
	var crumbs []string
	if raw, ok := rec.Fields["breadcrumb"].([]any); ok {
		for _, c := range raw {
			crumbs = append(crumbs, asString(translated(c, snap.LanguageID)))
		}
	}
	return map[string]any{
		"id":          rec.ID,
		"category_id": rec.ID,
		"language_id": snap.LanguageID,
		"name":        asString(translated(rec.Fields["name"], snap.LanguageID)),
		"parent_id":   asString(rec.Fields["parent_id"]),
		"breadcrumb":  crumbs,
		"visible":     asBool(rec.Fields["visible"]),
	}
}

func buildProduct(rec domain.Record, snap domain.Snapshot) map[string]any {
	stock := asInt(rec.Fields["stock"])
	return map[string]any{
		"id":           rec.ID,
		"name":         asString(translated(rec.Fields["name"], snap.LanguageID)),
		"description":  asString(translated(rec.Fields["description"], snap.LanguageID)),
		"price":        asFloat(rec.Fields["price"]),
		"stock":        stock,
		"available":    asBool(rec.Fields["active"]) && stock > 0,
		"category_ids": asStrings(rec.Fields["category_ids"]),
		"manufacturer": asString(rec.Fields["manufacturer"]),
	}
}

// translated picks the value for lang out of a {"<lang>": v, "default": v}
// object. Plain values are returned unchanged.
func translated(v any, lang string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if t, ok := m[lang]; ok && lang != "" {
		return t
	}
	return m["default"]
}

func keywords(values ...any) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range values {
		for _, w := range strings.Fields(strings.ToLower(asString(v))) {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	}
	return 0
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, s := range t {
			out = append(out, asString(s))
		}
		return out
	}
	return nil
}
