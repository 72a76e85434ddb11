package expr

import (
	"fmt"
	"strings"

	minqerrors "github.com/pay-theory/minq/pkg/errors"
)

// AddUpdateIncrement adds a SET clause that adds delta to a numeric field,
// treating a missing field as zero
func (b *Builder) AddUpdateIncrement(field string, delta any) error {
	if err := validatePath(field); err != nil {
		return err
	}
	nameRef := b.addName(field)
	zeroRef, err := b.addValue(0)
	if err != nil {
		return err
	}
	deltaRef, err := b.addValue(delta)
	if err != nil {
		return err
	}
	b.updateExpressions["SET"] = append(b.updateExpressions["SET"],
		fmt.Sprintf("%s = if_not_exists(%s, %s) + %s", nameRef, nameRef, zeroRef, deltaRef))
	return nil
}

// AddUpdateSetIfMissing adds a SET clause that only writes value when the field is absent
func (b *Builder) AddUpdateSetIfMissing(field string, value any) error {
	if err := validatePath(field); err != nil {
		return err
	}
	nameRef := b.addName(field)
	valueRef, err := b.addValue(value)
	if err != nil {
		return err
	}
	b.updateExpressions["SET"] = append(b.updateExpressions["SET"],
		fmt.Sprintf("%s = if_not_exists(%s, %s)", nameRef, nameRef, valueRef))
	return nil
}

// CompileUpdate compiles an update document into SET and REMOVE clauses.
// A document without operator keys is treated as a $set of its fields.
// Fields named in protected cannot be modified.
func (b *Builder) CompileUpdate(update map[string]any, protected ...string) error {
	if len(update) == 0 {
		return fmt.Errorf("update document is empty")
	}

	operators := 0
	for key := range update {
		if strings.HasPrefix(key, "$") {
			operators++
		}
	}
	if operators == 0 {
		update = map[string]any{"$set": update}
	} else if operators != len(update) {
		return fmt.Errorf("update document cannot mix operators and plain fields")
	}

	for _, op := range sortedKeys(update) {
		fields, ok := asMap(update[op])
		if !ok {
			return fmt.Errorf("%s requires a document, got %T", op, update[op])
		}
		for _, field := range sortedKeys(fields) {
			if isProtected(field, protected) {
				return fmt.Errorf("cannot modify key field %q", field)
			}

			var err error
			switch op {
			case "$set":
				err = b.AddUpdateSet(field, fields[field])
			case "$unset":
				err = b.AddUpdateRemove(field)
			case "$inc":
				err = b.AddUpdateIncrement(field, fields[field])
			default:
				return fmt.Errorf("%w: %s", minqerrors.ErrInvalidOperator, op)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// IsOperatorUpdate reports whether every top-level key is an update operator
func IsOperatorUpdate(update map[string]any) bool {
	return isOperatorDoc(update)
}

func isProtected(field string, protected []string) bool {
	for _, p := range protected {
		if field == p {
			return true
		}
	}
	return false
}
