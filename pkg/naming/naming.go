// Package naming validates collection and field names against the rules of the backing store.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	minqerrors "github.com/pay-theory/minq/pkg/errors"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)

// maxMongoNamespace is the maximum length of "<database>.<collection>"
const maxMongoNamespace = 255

// ValidateTableName enforces DynamoDB table naming rules for a collection name.
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", minqerrors.ErrInvalidCollectionName)
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 3-255 characters of [A-Za-z0-9_.-]", minqerrors.ErrInvalidCollectionName, name)
	}
	return nil
}

// ValidateCollectionName enforces MongoDB collection naming rules.
// database is used for the namespace length check and may be empty.
func ValidateCollectionName(database, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", minqerrors.ErrInvalidCollectionName)
	}
	if strings.ContainsAny(name, "$\x00") {
		return fmt.Errorf("%w: %q must not contain '$' or null characters", minqerrors.ErrInvalidCollectionName, name)
	}
	if strings.HasPrefix(name, "system.") {
		return fmt.Errorf("%w: %q uses the reserved system. prefix", minqerrors.ErrInvalidCollectionName, name)
	}
	if len(database)+1+len(name) > maxMongoNamespace {
		return fmt.Errorf("%w: namespace %s.%s is too long", minqerrors.ErrInvalidCollectionName, database, name)
	}
	return nil
}

// ValidateFieldName rejects field names no document store accepts.
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("field name %q contains a null character", name)
	}
	return nil
}

// SplitPath splits a dotted field path into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}
