// Package minq provides a fluent query builder over a document database.
//
// A Query accumulates a filter, a projection and options through chained
// calls and only touches the database when a finalizer (ToArray, One, Stream,
// Count) or a mutator (Insert, Update, Upsert, Remove, RemoveAll) is invoked.
// Terminal calls return immediately with a future (or a stream) that completes
// when the underlying driver call completes:
//
//	users := minq.New(db, "users")
//	docs, err := users.Where(core.Document{"country": "USA"}).
//	    Sort(core.Asc("name")).
//	    Limit(10).
//	    ToArray(ctx).
//	    Await(ctx)
//
// A Query is not safe for concurrent chaining. Terminal calls snapshot the
// builder state before launching, so chaining after a terminal call never
// races with the call in flight.
package minq

import (
	"context"
	"fmt"

	"github.com/pay-theory/minq/pkg/core"
	minqerrors "github.com/pay-theory/minq/pkg/errors"
	"github.com/pay-theory/minq/pkg/future"
	"github.com/pay-theory/minq/pkg/stream"
)

// Query is a chainable, lazily executed query builder bound to one collection
type Query struct {
	db         core.Database
	collection string
	filter     core.Document
	projection core.Document
	options    core.Options
	logger     *Logger
}

// Option configures a Query at construction
type Option func(*Query)

// WithLogger attaches a structured logger to the builder and every builder derived from it
func WithLogger(logger *Logger) Option {
	return func(q *Query) {
		q.logger = logger
	}
}

// New creates a builder for the named collection of db
func New(db core.Database, collection string, opts ...Option) *Query {
	q := &Query{
		db:         db,
		collection: collection,
		filter:     core.Document{},
		options:    core.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = NoopLogger()
	}
	return q
}

// Collection returns a new builder bound to name that shares the database handle.
// The receiver is not modified.
func (q *Query) Collection(name string) *Query {
	return New(q.db, name, WithLogger(q.logger))
}

// Clone returns an independent copy of the builder
func (q *Query) Clone() *Query {
	c := &Query{
		db:         q.db,
		collection: q.collection,
		filter:     q.filter.Clone(),
		options:    q.options.Clone(),
		logger:     q.logger,
	}
	if q.projection != nil {
		c.projection = q.projection.Clone()
	}
	return c
}

// Where replaces the filter. An empty filter matches every document.
func (q *Query) Where(filter core.Document) *Query {
	q.filter = filter.Clone()
	return q
}

// Select replaces the projection. A nil projection unsets it.
func (q *Query) Select(projection core.Document) *Query {
	if projection == nil {
		q.projection = nil
		return q
	}
	q.projection = projection.Clone()
	return q
}

// Sort sets the sort order
func (q *Query) Sort(keys ...core.SortKey) *Query {
	q.options.Sort = append(core.Sort(nil), keys...)
	return q
}

// Limit sets the maximum number of documents returned
func (q *Query) Limit(n int64) *Query {
	q.options.Limit = &n
	return q
}

// Skip sets the number of documents skipped
func (q *Query) Skip(n int64) *Query {
	q.options.Skip = &n
	return q
}

// CollectionName returns the collection the builder is bound to
func (q *Query) CollectionName() string {
	return q.collection
}

// Filter returns a copy of the current filter
func (q *Query) Filter() core.Document {
	return q.filter.Clone()
}

// Projection returns a copy of the current projection, or nil when unset
func (q *Query) Projection() core.Document {
	if q.projection == nil {
		return nil
	}
	return q.projection.Clone()
}

// Options returns a copy of the current options
func (q *Query) Options() core.Options {
	return q.options.Clone()
}

// ToArray fetches every matching document. Zero matches resolve to an empty slice.
func (q *Query) ToArray(ctx context.Context) *future.Future[[]core.Document] {
	s := q.snapshot()
	log := q.logger.WithCollection(s.collection)

	return future.Go(func() ([]core.Document, error) {
		cursor, err := q.cursor(ctx, s)
		if err != nil {
			log.LogRead(ctx, "toArray", 0, err)
			return nil, err
		}

		docs, err := cursor.All(ctx)
		if err != nil {
			log.LogRead(ctx, "toArray", 0, err)
			return nil, err
		}
		if docs == nil {
			docs = []core.Document{}
		}

		log.LogRead(ctx, "toArray", int64(len(docs)), nil)
		return docs, nil
	})
}

// One fetches the first matching document. It sets the builder's limit to 1.
// When nothing matches the future is rejected with errors.ErrNotFound.
func (q *Query) One(ctx context.Context) *future.Future[core.Document] {
	q.Limit(1)
	s := q.snapshot()
	log := q.logger.WithCollection(s.collection)

	return future.Go(func() (core.Document, error) {
		cursor, err := q.cursor(ctx, s)
		if err != nil {
			log.LogRead(ctx, "one", 0, err)
			return nil, err
		}

		doc, ok, err := cursor.Next(ctx)
		if err != nil {
			log.LogRead(ctx, "one", 0, err)
			return nil, err
		}
		if !ok {
			log.LogRead(ctx, "one", 0, nil)
			return nil, minqerrors.ErrNotFound
		}

		log.LogRead(ctx, "one", 1, nil)
		return doc, nil
	})
}

// Stream returns a push stream of matching documents. Collection resolution
// happens in the background; a failure surfaces as the stream's error
// followed by end-of-stream.
func (q *Query) Stream(ctx context.Context) *stream.Stream {
	s := q.snapshot()
	log := q.logger.WithCollection(s.collection)

	return stream.New(ctx, func(ctx context.Context, emit func(core.Document) error) error {
		cursor, err := q.cursor(ctx, s)
		if err != nil {
			log.LogRead(ctx, "stream", 0, err)
			return err
		}

		var forwarded int64
		err = cursor.Each(ctx, func(doc core.Document) error {
			if err := emit(doc); err != nil {
				return err
			}
			forwarded++
			return nil
		})
		log.LogRead(ctx, "stream", forwarded, err)
		return err
	})
}

// Count counts the documents matching the filter. Limit and skip are not applied.
func (q *Query) Count(ctx context.Context) *future.Future[int64] {
	s := q.snapshot()
	log := q.logger.WithCollection(s.collection)

	return future.Go(func() (int64, error) {
		cursor, err := q.cursor(ctx, s)
		if err != nil {
			log.LogRead(ctx, "count", 0, err)
			return 0, err
		}

		n, err := cursor.Count(ctx)
		log.LogRead(ctx, "count", n, err)
		return n, err
	})
}

// Insert inserts one or more documents and resolves to the inserted
// documents with their identifiers
func (q *Query) Insert(ctx context.Context, docs ...core.Document) *future.Future[[]core.Document] {
	s := q.snapshot()
	log := q.logger.WithCollection(s.collection)
	batch := append([]core.Document(nil), docs...)

	return future.Go(func() ([]core.Document, error) {
		coll, err := q.resolve(ctx, s.collection)
		if err != nil {
			log.LogWrite(ctx, "insert", 0, err)
			return nil, err
		}

		inserted, err := coll.Insert(ctx, batch, s.options)
		log.LogWrite(ctx, "insert", int64(len(inserted)), err)
		return inserted, err
	})
}

// Update applies changes to the document matching the filter.
// If changes carries an identifier, the filter is narrowed to that identifier
// and the identifier is left out of the change set; changes itself is not modified.
func (q *Query) Update(ctx context.Context, changes core.Document) *future.Future[core.UpdateResult] {
	q.options.Upsert = false
	q.options.ReturnNew = true
	return q.update(ctx, "update", changes)
}

// Upsert is Update with insert-if-missing semantics
func (q *Query) Upsert(ctx context.Context, changes core.Document) *future.Future[core.UpdateResult] {
	q.options.Upsert = true
	return q.update(ctx, "upsert", changes)
}

func (q *Query) update(ctx context.Context, op string, changes core.Document) *future.Future[core.UpdateResult] {
	set := changes
	if id, ok := changes.ID(); ok {
		q.filter[core.IDField] = id
		set = changes.Without(core.IDField)
	}

	s := q.snapshot()
	log := q.logger.WithCollection(s.collection)

	return future.Go(func() (core.UpdateResult, error) {
		coll, err := q.resolve(ctx, s.collection)
		if err != nil {
			log.LogWrite(ctx, op, 0, err)
			return core.UpdateResult{}, err
		}

		result, err := coll.Update(ctx, s.filter, set, s.options)
		log.LogWrite(ctx, op, result.ModifiedCount+result.UpsertedCount, err)
		return result, err
	})
}

// Remove removes the documents matching the filter. Without a filter the
// returned future is already rejected with errors.ErrNoWhere and no driver
// call is made; use RemoveAll to empty a collection.
func (q *Query) Remove(ctx context.Context) *future.Future[int64] {
	if len(q.filter) == 0 {
		q.logger.WithCollection(q.collection).LogWrite(ctx, "remove", 0, minqerrors.ErrNoWhere)
		return future.Rejected[int64](minqerrors.ErrNoWhere)
	}
	return q.remove(ctx, "remove", q.snapshot())
}

// RemoveAll removes every document in the collection
func (q *Query) RemoveAll(ctx context.Context) *future.Future[int64] {
	s := q.snapshot()
	s.filter = core.Document{}
	return q.remove(ctx, "removeAll", s)
}

func (q *Query) remove(ctx context.Context, op string, s snapshot) *future.Future[int64] {
	log := q.logger.WithCollection(s.collection)

	return future.Go(func() (int64, error) {
		coll, err := q.resolve(ctx, s.collection)
		if err != nil {
			log.LogWrite(ctx, op, 0, err)
			return 0, err
		}

		n, err := coll.Remove(ctx, s.filter, s.options)
		log.LogWrite(ctx, op, n, err)
		return n, err
	})
}

// snapshot is the builder state captured by a terminal call
type snapshot struct {
	collection string
	filter     core.Document
	projection core.Document
	options    core.Options
}

func (q *Query) snapshot() snapshot {
	s := snapshot{
		collection: q.collection,
		filter:     q.filter.Clone(),
		options:    q.options.Clone(),
	}
	if q.projection != nil {
		s.projection = q.projection.Clone()
	}
	return s
}

// resolve looks up the collection, converting failures and panics into resolution errors
func (q *Query) resolve(ctx context.Context, name string) (coll core.Collection, err error) {
	if q.db == nil {
		return nil, minqerrors.NewResolutionError(name, minqerrors.ErrNilDatabase)
	}

	defer func() {
		if r := recover(); r != nil {
			coll = nil
			err = minqerrors.NewResolutionError(name, fmt.Errorf("panic: %v", r))
		}
	}()

	coll, err = q.db.Collection(ctx, name)
	if err != nil {
		return nil, minqerrors.NewResolutionError(name, err)
	}
	if coll == nil {
		return nil, minqerrors.NewResolutionError(name, fmt.Errorf("database returned no collection"))
	}
	return coll, nil
}

// cursor resolves the collection and opens a cursor, omitting the projection when unset
func (q *Query) cursor(ctx context.Context, s snapshot) (core.Cursor, error) {
	coll, err := q.resolve(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	if s.projection != nil {
		return coll.Find(s.filter, s.options, s.projection), nil
	}
	return coll.Find(s.filter, s.options), nil
}
