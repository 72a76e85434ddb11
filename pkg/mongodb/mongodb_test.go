package mongodb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/pay-theory/minq/pkg/core"
	minqerrors "github.com/pay-theory/minq/pkg/errors"
)

func usersCollection(mt *mtest.T) core.Collection {
	coll, err := New(mt.DB).Collection(context.Background(), "users")
	require.NoError(mt, err)
	return coll
}

func TestCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("rejects invalid names", func(mt *mtest.T) {
		db := New(mt.DB)
		_, err := db.Collection(context.Background(), "")
		assert.ErrorIs(mt, err, minqerrors.ErrInvalidCollectionName)

		_, err = db.Collection(context.Background(), "system.users")
		assert.ErrorIs(mt, err, minqerrors.ErrInvalidCollectionName)
	})

	mt.Run("name", func(mt *mtest.T) {
		assert.Equal(mt, "users", usersCollection(mt).Name())
	})
}

func TestCursor(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("all", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "minq.users", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}, {Key: "name", Value: "Ada"}},
			bson.D{{Key: "_id", Value: "b"}, {Key: "tags", Value: bson.A{"x", "y"}}},
		))

		docs, err := usersCollection(mt).Find(core.Document{}, core.DefaultOptions()).All(context.Background())
		require.NoError(mt, err)

		assert.Equal(mt, []core.Document{
			{"_id": "a", "name": "Ada"},
			{"_id": "b", "tags": []any{"x", "y"}},
		}, docs)
	})

	mt.Run("all on empty result is an empty slice", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "minq.users", mtest.FirstBatch))

		docs, err := usersCollection(mt).Find(core.Document{"x": 1}, core.DefaultOptions()).All(context.Background())
		require.NoError(mt, err)
		assert.NotNil(mt, docs)
		assert.Empty(mt, docs)
	})

	mt.Run("next", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "minq.users", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}},
			bson.D{{Key: "_id", Value: "b"}},
		))

		cur := usersCollection(mt).Find(core.Document{}, core.DefaultOptions())
		ctx := context.Background()

		doc, ok, err := cur.Next(ctx)
		require.NoError(mt, err)
		require.True(mt, ok)
		assert.Equal(mt, "a", doc["_id"])

		doc, ok, err = cur.Next(ctx)
		require.NoError(mt, err)
		require.True(mt, ok)
		assert.Equal(mt, "b", doc["_id"])

		_, ok, err = cur.Next(ctx)
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("each stops on callback error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "minq.users", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}},
			bson.D{{Key: "_id", Value: "b"}},
		))

		stop := errors.New("stop")
		var seen []any
		err := usersCollection(mt).Find(core.Document{}, core.DefaultOptions()).Each(context.Background(), func(doc core.Document) error {
			seen = append(seen, doc["_id"])
			return stop
		})
		assert.ErrorIs(mt, err, stop)
		assert.Equal(mt, []any{"a"}, seen)
	})

	mt.Run("count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "minq.users", mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(3)}},
		))

		n, err := usersCollection(mt).Find(core.Document{"active": true}, core.DefaultOptions()).Count(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), n)
	})

	mt.Run("command error passes through", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized",
		}))

		_, err := usersCollection(mt).Find(core.Document{}, core.DefaultOptions()).All(context.Background())
		var cmdErr mongo.CommandError
		require.ErrorAs(mt, err, &cmdErr)
		assert.Equal(mt, int32(13), cmdErr.Code)
	})
}

func TestWrites(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert assigns object ids", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		input := []core.Document{{"name": "a"}, {"_id": "given"}}
		out, err := usersCollection(mt).Insert(context.Background(), input, core.DefaultOptions())
		require.NoError(mt, err)

		require.Len(mt, out, 2)
		assert.IsType(mt, primitive.ObjectID{}, out[0]["_id"])
		assert.Equal(mt, "given", out[1]["_id"])
		_, mutated := input[0]["_id"]
		assert.False(mt, mutated)
	})

	mt.Run("insert duplicate key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		_, err := usersCollection(mt).Insert(context.Background(), []core.Document{{"_id": "x"}}, core.DefaultOptions())
		assert.True(mt, mongo.IsDuplicateKeyError(err))
	})

	mt.Run("insert nothing", func(mt *mtest.T) {
		out, err := usersCollection(mt).Insert(context.Background(), nil, core.DefaultOptions())
		require.NoError(mt, err)
		assert.Empty(mt, out)
	})

	mt.Run("update", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		res, err := usersCollection(mt).Update(context.Background(),
			core.Document{"_id": "a"}, core.Document{"$set": core.Document{"name": "b"}}, core.DefaultOptions())
		require.NoError(mt, err)
		assert.Equal(mt, core.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, res)
	})

	mt.Run("upsert via replace", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{
				bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "new-id"}},
			}},
		))

		opts := core.DefaultOptions()
		opts.Upsert = true

		res, err := usersCollection(mt).Update(context.Background(),
			core.Document{"email": "a@example.com"}, core.Document{"name": "b"}, opts)
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), res.UpsertedCount)
		assert.Equal(mt, "new-id", res.UpsertedID)
	})

	mt.Run("remove", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		n, err := usersCollection(mt).Remove(context.Background(), core.Document{"stale": true}, core.DefaultOptions())
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), n)
	})
}

type failingDecodeCursor struct {
	closed int
}

func (f *failingDecodeCursor) Next(context.Context) bool { return true }
func (f *failingDecodeCursor) Decode(any) error { return errors.New("corrupt document") }
func (f *failingDecodeCursor) Err() error { return nil }
func (f *failingDecodeCursor) Close(context.Context) error {
	f.closed++
	return nil
}

func TestCursorNext_DecodeErrorClosesCursor(t *testing.T) {
	driver := &failingDecodeCursor{}
	cur := &Cursor{cur: driver}

	doc, ok, err := cur.Next(context.Background())
	assert.EqualError(t, err, "corrupt document")
	assert.False(t, ok)
	assert.Nil(t, doc)
	assert.Equal(t, 1, driver.closed)
}

func TestFindOptions(t *testing.T) {
	skip, limit := int64(5), int64(10)
	cur := &Cursor{
		opts: core.Options{
			Sort:  core.Sort{core.Asc("b"), core.Desc("a")},
			Skip:  &skip,
			Limit: &limit,
		},
		projection: core.Document{"name": 1},
	}

	fo := cur.findOptions()
	assert.Equal(t, bson.D{{Key: "b", Value: 1}, {Key: "a", Value: -1}}, fo.Sort)
	assert.Equal(t, int64(5), *fo.Skip)
	assert.Equal(t, int64(10), *fo.Limit)
	assert.Equal(t, map[string]any{"name": 1}, fo.Projection)

	bare := (&Cursor{}).findOptions()
	assert.Nil(t, bare.Sort)
	assert.Nil(t, bare.Limit)
	assert.Nil(t, bare.Skip)
	assert.Nil(t, bare.Projection)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mongo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("uri: mongodb://db:27017\ndatabase: app\nconnect_timeout: 2s\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db:27017", cfg.URI)
	assert.Equal(t, "app", cfg.Database)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "minq", cfg.AppName)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
