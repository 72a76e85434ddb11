// Package core defines the core interfaces and types for minq
package core

import (
	"context"
)

// IDField is the identifier field distinguishing documents within a collection
const IDField = "_id"

// Database represents a document database handle that can resolve collections
type Database interface {
	// Collection resolves a named collection
	Collection(ctx context.Context, name string) (Collection, error)
}

// Collection represents a resolved collection handle
type Collection interface {
	// Name returns the collection name
	Name() string

	// Find returns a lazy cursor over the documents matching filter.
	// The projection argument is omitted entirely when none is set.
	Find(filter Document, opts Options, projection ...Document) Cursor

	// Insert inserts documents and returns them with their identifiers
	Insert(ctx context.Context, docs []Document, opts Options) ([]Document, error)

	// Update updates (or upserts, per opts.Upsert) the document matching filter
	Update(ctx context.Context, filter, changes Document, opts Options) (UpdateResult, error)

	// Remove removes documents matching filter and returns the count removed
	Remove(ctx context.Context, filter Document, opts Options) (int64, error)
}

// Cursor represents a handle over a result set
type Cursor interface {
	// All materializes the result set
	All(ctx context.Context) ([]Document, error)

	// Next returns the next document, or false at the end of the result set
	Next(ctx context.Context) (Document, bool, error)

	// Count returns the number of documents matching the filter, ignoring limit and skip
	Count(ctx context.Context) (int64, error)

	// Each pushes documents to fn in cursor order until the result set is
	// exhausted, fn returns an error, or ctx is done
	Each(ctx context.Context, fn func(Document) error) error
}

// UpdateResult describes the outcome of an update or upsert
type UpdateResult struct {
	// MatchedCount is the number of documents matching the filter
	MatchedCount int64

	// ModifiedCount is the number of documents changed
	ModifiedCount int64

	// UpsertedCount is the number of documents inserted by an upsert
	UpsertedCount int64

	// UpsertedID is the identifier of the inserted document, if any
	UpsertedID any
}
