package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names. Every backend keys documents by (collection, id).
const (
	CollectionProducts   = "products"
	CollectionCategories = "categories"
	CollectionOrders     = "orders"
	CollectionReturns    = "returns"
	CollectionReviews    = "reviews"
	CollectionUsers      = "users"
)

var (
	// ErrPersistence wraps any backend failure. Callers abort the whole
	// operation and surface a retry message; nothing is retried here.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound is returned when a document id is absent from a collection.
	ErrNotFound = errors.New("document not found")
)

// Document is a stored record: an opaque id plus its JSON body.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Store is the persistence adapter over a document store. Backends: in-memory,
// JSON file, PostgreSQL, DynamoDB. Add assigns and returns the document id;
// Update replaces the document body and fails with ErrNotFound for absent ids.
type Store interface {
	GetAll(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Add(ctx context.Context, collection string, data any) (string, error)
	Update(ctx context.Context, collection, id string, data any) error
	Delete(ctx context.Context, collection, id string) error
}
