// Package mocks provides mock implementations for minq interfaces.
//
// Instead of hand-writing fakes for core.Database, core.Collection and
// core.Cursor in every test, use these pre-built testify mocks.
//
// # Basic Usage
//
//	func TestUserService(t *testing.T) {
//	    mockDB := new(mocks.MockDatabase)
//	    mockColl := new(mocks.MockCollection)
//	    mockCursor := new(mocks.MockCursor)
//
//	    mockDB.On("Collection", mock.Anything, "users").Return(mockColl, nil)
//	    mockColl.On("Find", core.Document{"status": "active"}, mock.Anything).Return(mockCursor)
//	    mockCursor.On("All", mock.Anything).Return([]core.Document{{"_id": "1"}}, nil)
//
//	    docs, err := minq.New(mockDB, "users").
//	        Where(core.Document{"status": "active"}).
//	        ToArray(ctx).
//	        Await(ctx)
//
//	    mockDB.AssertExpectations(t)
//	    mockColl.AssertExpectations(t)
//	    mockCursor.AssertExpectations(t)
//	}
//
// # Projection
//
// MockCollection.Find records (filter, options) when the builder has no
// projection and (filter, options, projection) when it has one:
//
//	mockColl.On("Find", filter, mock.Anything, core.Document{"name": 1}).Return(mockCursor)
//
// # DynamoDB
//
// MockDynamoDBClient implements the client API used by the dynamo driver:
//
//	client := new(mocks.MockDynamoDBClient)
//	client.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(&dynamodb.ScanOutput{}, nil)
//	db := dynamo.NewWithClient(client)
//
// # Tips
//
// 1. Use mock.Anything for context arguments
// 2. Use mock.MatchedBy to assert on options
// 3. Always assert expectations were met with AssertExpectations
package mocks

// Helper type aliases for convenience
type (
	// Database is an alias for MockDatabase to allow shorter declarations
	Database = MockDatabase

	// Collection is an alias for MockCollection to allow shorter declarations
	Collection = MockCollection

	// Cursor is an alias for MockCursor to allow shorter declarations
	Cursor = MockCursor
)
