package domain

import "encoding/json"

// TotalCountMode selects how HydratedResult.Total is computed.
type TotalCountMode int

const (
	// TotalCountNone reports the number of hits returned in the page.
	TotalCountNone TotalCountMode = iota
	// TotalCountExact reports the backend-side total.
	TotalCountExact
	// TotalCountNextPages is approximate and, like none, reports the page size.
	TotalCountNextPages
)

// Sort is a single sort instruction.
type Sort struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// Criteria describes what the caller asked for.
type Criteria struct {
	Term           string         `json:"term,omitempty"`
	IDs            []Key          `json:"ids,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
	PostFilters    map[string]any `json:"post_filters,omitempty"`
	GroupFields    []string       `json:"group_fields,omitempty"`
	Sorting        []Sort         `json:"sorting,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	Offset         int            `json:"offset,omitempty"`
	TotalCountMode TotalCountMode `json:"total_count_mode,omitempty"`
}

// UseIDSorting reports whether results must follow the order of IDs.
func (c Criteria) UseIDSorting() bool {
	return len(c.IDs) > 0 && len(c.Sorting) == 0
}

// HydratedEntry is one result row.
type HydratedEntry struct {
	PrimaryKey string         `json:"primary_key"`
	Data       map[string]any `json:"data"`
	Score      float64        `json:"score"`
}

// HydratedResult is an ordered, deduplicated page of results.
type HydratedResult struct {
	Total    int      `json:"total"`
	Criteria Criteria `json:"criteria"`

	order   []string
	entries map[string]HydratedEntry
}

// NewHydratedResult returns an empty result for criteria.
func NewHydratedResult(total int, criteria Criteria) *HydratedResult {
	return &HydratedResult{
		Total:    total,
		Criteria: criteria,
		entries:  map[string]HydratedEntry{},
	}
}

// Set inserts or overwrites id. Overwriting keeps the original position.
func (r *HydratedResult) Set(id string, e HydratedEntry) {
	if _, ok := r.entries[id]; !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = e
}

// Get returns the entry stored under id.
func (r *HydratedResult) Get(id string) (HydratedEntry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// IDs returns the document ids in presentation order.
func (r *HydratedResult) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Entries returns the rows in presentation order.
func (r *HydratedResult) Entries() []HydratedEntry {
	out := make([]HydratedEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Len returns the number of distinct documents.
func (r *HydratedResult) Len() int {
	return len(r.order)
}

// MarshalJSON renders the rows as an ordered list.
func (r *HydratedResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total     int             `json:"total"`
		Criteria  Criteria        `json:"criteria"`
		Documents []HydratedEntry `json:"documents"`
	}{r.Total, r.Criteria, r.Entries()})
}
