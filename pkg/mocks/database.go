// Package mocks provides mock implementations for minq interfaces.
// These mocks are designed to be used with github.com/stretchr/testify/mock
// for unit testing applications that use minq.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pay-theory/minq/pkg/core"
)

// MockDatabase is a mock implementation of the core.Database interface.
//
// Example usage:
//
//	mockDB := new(mocks.MockDatabase)
//	mockDB.On("Collection", mock.Anything, "users").Return(mockColl, nil)
type MockDatabase struct {
	mock.Mock
}

// Collection resolves a named collection
func (m *MockDatabase) Collection(ctx context.Context, name string) (core.Collection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(core.Collection), args.Error(1)
}

// MockCollection is a mock implementation of the core.Collection interface.
//
// Find records two arguments (filter, options) when no projection is passed
// and three (filter, options, projection) when one is, so expectations can
// tell the two call forms apart.
type MockCollection struct {
	mock.Mock
}

// Name returns the collection name
func (m *MockCollection) Name() string {
	args := m.Called()
	return args.String(0)
}

// Find returns a cursor over matching documents
func (m *MockCollection) Find(filter core.Document, opts core.Options, projection ...core.Document) core.Cursor {
	var args mock.Arguments
	if len(projection) > 0 {
		args = m.Called(filter, opts, projection[0])
	} else {
		args = m.Called(filter, opts)
	}
	return args.Get(0).(core.Cursor)
}

// Insert inserts documents
func (m *MockCollection) Insert(ctx context.Context, docs []core.Document, opts core.Options) ([]core.Document, error) {
	args := m.Called(ctx, docs, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core.Document), args.Error(1)
}

// Update updates the matching document
func (m *MockCollection) Update(ctx context.Context, filter, changes core.Document, opts core.Options) (core.UpdateResult, error) {
	args := m.Called(ctx, filter, changes, opts)
	return args.Get(0).(core.UpdateResult), args.Error(1)
}

// Remove removes matching documents
func (m *MockCollection) Remove(ctx context.Context, filter core.Document, opts core.Options) (int64, error) {
	args := m.Called(ctx, filter, opts)
	return args.Get(0).(int64), args.Error(1)
}

// MockCursor is a mock implementation of the core.Cursor interface.
//
// To push documents through Each, use Run:
//
//	mockCursor.On("Each", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
//	    fn := args.Get(1).(func(core.Document) error)
//	    _ = fn(core.Document{"_id": "1"})
//	}).Return(nil)
type MockCursor struct {
	mock.Mock
}

// All materializes the result set
func (m *MockCursor) All(ctx context.Context) ([]core.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core.Document), args.Error(1)
}

// Next returns the next document
func (m *MockCursor) Next(ctx context.Context) (core.Document, bool, error) {
	args := m.Called(ctx)
	var doc core.Document
	if args.Get(0) != nil {
		doc = args.Get(0).(core.Document)
	}
	return doc, args.Bool(1), args.Error(2)
}

// Count returns the number of matching documents
func (m *MockCursor) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Each pushes documents to fn
func (m *MockCursor) Each(ctx context.Context, fn func(core.Document) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}
