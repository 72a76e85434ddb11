// Package errors defines error types and utilities for minq
package errors

import (
	"errors"
	"fmt"
)

// Common errors that can occur in minq operations
var (
	// ErrNotFound is returned when a single-document read matches nothing
	ErrNotFound = errors.New("document not found")

	// ErrNoWhere is returned by Remove when no filter has been set
	ErrNoWhere = errors.New("no where filter specified; use RemoveAll to remove all documents")

	// ErrCollectionResolution is returned when a collection cannot be resolved
	ErrCollectionResolution = errors.New("collection resolution failed")

	// ErrNilDatabase is returned when a builder has no database handle
	ErrNilDatabase = errors.New("database handle is nil")

	// ErrInvalidCollectionName is returned when a collection name is rejected by a driver
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidOperator is returned when a filter or update uses an unsupported operator
	ErrInvalidOperator = errors.New("invalid query operator")

	// ErrUnsupportedType is returned when a value cannot be stored by a driver
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrTableNotFound is returned when a DynamoDB table backing a collection doesn't exist
	ErrTableNotFound = errors.New("table not found")
)

// MinqError represents a detailed error with context
type MinqError struct {
	Op         string         // Operation that failed
	Collection string         // Collection name
	Err        error          // Underlying error
	Context    map[string]any // Additional context
}

// Error implements the error interface
func (e *MinqError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("minq: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("minq: %s %q failed: %v", e.Op, e.Collection, e.Err)
}

// Unwrap returns the underlying error
func (e *MinqError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *MinqError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new MinqError
func NewError(op, collection string, err error) *MinqError {
	return &MinqError{
		Op:         op,
		Collection: collection,
		Err:        err,
	}
}

// NewErrorWithContext creates a new MinqError with context
func NewErrorWithContext(op, collection string, err error, context map[string]any) *MinqError {
	return &MinqError{
		Op:         op,
		Collection: collection,
		Err:        err,
		Context:    context,
	}
}

// NewResolutionError wraps a collection resolution failure so that both
// ErrCollectionResolution and the driver cause match with errors.Is
func NewResolutionError(collection string, cause error) *MinqError {
	return NewError("resolve", collection, fmt.Errorf("%w: %w", ErrCollectionResolution, cause))
}

// IsNotFound checks if an error indicates a document was not found
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUsageGuard checks if an error is the unconditional-remove guard
func IsUsageGuard(err error) bool {
	return errors.Is(err, ErrNoWhere)
}

// IsResolution checks if an error indicates a collection resolution failure
func IsResolution(err error) bool {
	return errors.Is(err, ErrCollectionResolution)
}
