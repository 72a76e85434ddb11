// Package mongodb implements core.Database on the official MongoDB driver.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/pay-theory/minq/internal/expr"
	"github.com/pay-theory/minq/pkg/core"
	"github.com/pay-theory/minq/pkg/naming"
)

// Database wraps a MongoDB database handle
type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and returns the configured database
func Connect(ctx context.Context, cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &Database{client: client, db: client.Database(cfg.Database)}, nil
}

// New wraps an existing database handle
func New(db *mongo.Database) *Database {
	return &Database{client: db.Client(), db: db}
}

// Disconnect closes the underlying client
func (d *Database) Disconnect(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// Collection resolves a collection by name
func (d *Database) Collection(_ context.Context, name string) (core.Collection, error) {
	if err := naming.ValidateCollectionName(d.db.Name(), name); err != nil {
		return nil, err
	}
	return &Collection{coll: d.db.Collection(name)}, nil
}

// Collection is a MongoDB collection
type Collection struct {
	coll *mongo.Collection
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.coll.Name()
}

// Find returns a lazy cursor; the query runs on the first read
func (c *Collection) Find(filter core.Document, opts core.Options, projection ...core.Document) core.Cursor {
	cur := &Cursor{
		coll:   c.coll,
		filter: filter.Clone(),
		opts:   opts.Clone(),
	}
	if len(projection) > 0 && projection[0] != nil {
		cur.projection = projection[0].Clone()
	}
	return cur
}

// Insert inserts documents, assigning an ObjectID to documents without _id
func (c *Collection) Insert(ctx context.Context, docs []core.Document, opts core.Options) ([]core.Document, error) {
	out := make([]core.Document, len(docs))
	batch := make([]any, len(docs))
	for i, doc := range docs {
		stored := doc.Clone()
		if id, ok := stored.ID(); !ok || id == nil {
			stored[core.IDField] = primitive.NewObjectID()
		}
		out[i] = stored
		batch[i] = map[string]any(stored)
	}
	if len(batch) == 0 {
		return out, nil
	}

	coll, err := c.writeCollection(opts)
	if err != nil {
		return nil, err
	}
	if _, err := coll.InsertMany(ctx, batch); unacknowledged(err) != nil {
		return nil, err
	}
	return out, nil
}

// Update updates the first matching document. Operator documents are applied
// with UpdateOne and plain documents replace the match.
func (c *Collection) Update(ctx context.Context, filter, changes core.Document, opts core.Options) (core.UpdateResult, error) {
	coll, err := c.writeCollection(opts)
	if err != nil {
		return core.UpdateResult{}, err
	}

	var res *mongo.UpdateResult
	if expr.IsOperatorUpdate(changes) {
		res, err = coll.UpdateOne(ctx, bsonFilter(filter), map[string]any(changes), options.Update().SetUpsert(opts.Upsert))
	} else {
		res, err = coll.ReplaceOne(ctx, bsonFilter(filter), map[string]any(changes), options.Replace().SetUpsert(opts.Upsert))
	}
	if err = unacknowledged(err); err != nil {
		return core.UpdateResult{}, err
	}
	if res == nil {
		return core.UpdateResult{}, nil
	}

	return core.UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

// Remove deletes every matching document
func (c *Collection) Remove(ctx context.Context, filter core.Document, opts core.Options) (int64, error) {
	coll, err := c.writeCollection(opts)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, bsonFilter(filter))
	if err = unacknowledged(err); err != nil {
		return 0, err
	}
	if res == nil {
		return 0, nil
	}
	return res.DeletedCount, nil
}

// writeCollection returns the collection with an unacknowledged write concern when Safe is off
func (c *Collection) writeCollection(opts core.Options) (*mongo.Collection, error) {
	if opts.Safe {
		return c.coll, nil
	}
	return c.coll.Clone(options.Collection().SetWriteConcern(writeconcern.Unacknowledged()))
}

// unacknowledged drops the error the driver reports for fire-and-forget writes
func unacknowledged(err error) error {
	if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
		return nil
	}
	return err
}

// Cursor runs a find lazily
type Cursor struct {
	coll       *mongo.Collection
	filter     core.Document
	opts       core.Options
	projection core.Document

	cur driverCursor
}

// driverCursor is the part of *mongo.Cursor that Next iterates with
type driverCursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// All returns every matching document
func (c *Cursor) All(ctx context.Context) ([]core.Document, error) {
	cur, err := c.coll.Find(ctx, bsonFilter(c.filter), c.findOptions())
	if err != nil {
		return nil, err
	}

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, err
	}

	docs := make([]core.Document, len(raw))
	for i, m := range raw {
		docs[i] = toDocument(m)
	}
	return docs, nil
}

// Next returns the next document, opening the driver cursor on the first call
func (c *Cursor) Next(ctx context.Context) (core.Document, bool, error) {
	if c.cur == nil {
		cur, err := c.coll.Find(ctx, bsonFilter(c.filter), c.findOptions())
		if err != nil {
			return nil, false, err
		}
		c.cur = cur
	}

	if !c.cur.Next(ctx) {
		err := c.cur.Err()
		_ = c.cur.Close(context.WithoutCancel(ctx))
		return nil, false, err
	}

	var m bson.M
	if err := c.cur.Decode(&m); err != nil {
		_ = c.cur.Close(context.WithoutCancel(ctx))
		return nil, false, err
	}
	return toDocument(m), true, nil
}

// Count counts matching documents, ignoring limit and skip
func (c *Cursor) Count(ctx context.Context) (int64, error) {
	return c.coll.CountDocuments(ctx, bsonFilter(c.filter))
}

// Each streams documents to fn, closing the driver cursor when done
func (c *Cursor) Each(ctx context.Context, fn func(core.Document) error) error {
	cur, err := c.coll.Find(ctx, bsonFilter(c.filter), c.findOptions())
	if err != nil {
		return err
	}
	defer cur.Close(context.WithoutCancel(ctx))

	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return err
		}
		if err := fn(toDocument(m)); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (c *Cursor) findOptions() *options.FindOptions {
	fo := options.Find()
	if len(c.opts.Sort) > 0 {
		sort := make(bson.D, 0, len(c.opts.Sort))
		for _, key := range c.opts.Sort {
			sort = append(sort, bson.E{Key: key.Field, Value: int(key.Direction)})
		}
		fo.SetSort(sort)
	}
	if c.opts.Limit != nil {
		fo.SetLimit(*c.opts.Limit)
	}
	if c.opts.Skip != nil {
		fo.SetSkip(*c.opts.Skip)
	}
	if c.projection != nil {
		fo.SetProjection(map[string]any(c.projection))
	}
	return fo
}

func bsonFilter(filter core.Document) map[string]any {
	if filter == nil {
		return map[string]any{}
	}
	return filter
}

// toDocument converts a decoded document, replacing driver container types with plain maps and slices
func toDocument(m bson.M) core.Document {
	doc := make(core.Document, len(m))
	for k, v := range m {
		doc[k] = normalize(v)
	}
	return doc
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(toDocument(t))
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
