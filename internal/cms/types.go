// Package cms stores content collections and entries: the CMS half of the
// nebula control plane.
//
// A Collection defines a named, typed field list; an Entry is one record
// conforming to a collection. Entries reference collections by id without a
// foreign-key check, and collection slugs are not de-duplicated by the store;
// both are caller responsibilities.
package cms

import "errors"

// FieldType enumerates the schema field types a collection may declare.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// Status enumerates entry publication states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrCollectionNotFound indicates no collection matches the given slug.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Field is one declared field of a collection schema.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Collection is a content type definition. Immutable once created: there is
// no update operation. Timestamps are epoch milliseconds.
type Collection struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Fields    []Field `json:"fields"`
	CreatedAt int64   `json:"createdAt"`
}

// Entry is one content record. Saves are whole-record upserts keyed by ID.
type Entry struct {
	ID           string           `json:"id"`
	CollectionID string           `json:"collectionId"`
	Data         map[string]Value `json:"data"`
	Status       Status           `json:"status"`
	UpdatedAt    int64            `json:"updatedAt"`
}
