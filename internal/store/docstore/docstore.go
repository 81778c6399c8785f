package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("document not found")

// Document is a raw record as the store sees it. Values are restricted to
// what JSON can carry: strings, float64, bool, nil.
type Document = map[string]interface{}

// Store is a minimal document store: independent per-collection CRUD with a
// single equality filter. No transactions, no multi-document atomicity, and
// List gives no ordering guarantee; callers needing order sort client-side.
type Store interface {
	Create(ctx context.Context, collection, id string, doc Document) error
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection, filterKey string, filterValue interface{}) ([]Document, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error
}
