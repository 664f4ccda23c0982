package domain

import "strings"

// KeySeparator joins the parts of a composite primary key into a document id.
const KeySeparator = "-"

// Key is a primary key, possibly composite. Single keys have one part.
type Key []string

// String joins the key parts the same way indexers build document ids.
func (k Key) String() string {
	return strings.Join(k, KeySeparator)
}

// Record is an entity row loaded from the primary store.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Document is the search-backend shape of a record.
type Document struct {
	ID     string         `json:"id"`
	Source map[string]any `json:"source"`
}

// Change describes one written row and the fields the write touched.
type Change struct {
	ID      string   `json:"id"`
	Fields  []string `json:"fields"`
	Deleted bool     `json:"deleted,omitempty"`
}

// WriteEvent describes a primary-store write of one entity type.
type WriteEvent struct {
	Entity  string   `json:"entity"`
	Changes []Change `json:"changes"`
	Context Snapshot `json:"context"`
}

// FieldType is a search-backend field type.
type FieldType string

const (
	FieldKeyword FieldType = "keyword"
	FieldText    FieldType = "text"
	FieldLong    FieldType = "long"
	FieldDouble  FieldType = "double"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// Field is a single mapping declaration.
type Field struct {
	Type     FieldType `json:"type"`
	Analyzer string    `json:"analyzer,omitempty"`
}

// Mapping is the declared field mapping of one index.
type Mapping map[string]Field
