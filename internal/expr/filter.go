package expr

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pay-theory/minq/pkg/core"
	minqerrors "github.com/pay-theory/minq/pkg/errors"
)

// comparisonOperators maps query operators to builder operators
var comparisonOperators = map[string]string{
	"$eq":  "=",
	"$ne":  "<>",
	"$gt":  ">",
	"$gte": ">=",
	"$lt":  "<",
	"$lte": "<=",
}

// CompileFilter compiles a filter document into a DynamoDB condition expression.
// Top-level fields are joined with AND. An empty filter compiles to "".
func (b *Builder) CompileFilter(filter map[string]any) (string, error) {
	var clauses []string
	for _, key := range sortedKeys(filter) {
		clause, err := b.compileEntry(key, filter[key])
		if err != nil {
			return "", err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func (b *Builder) compileEntry(key string, value any) (string, error) {
	switch key {
	case "$and", "$or":
		return b.compileLogical(key, value)
	}
	if strings.HasPrefix(key, "$") {
		return "", fmt.Errorf("%w: %s", minqerrors.ErrInvalidOperator, key)
	}

	if ops, ok := asMap(value); ok && isOperatorDoc(ops) {
		return b.compileOperators(key, ops)
	}
	return b.compileEquality(key, value)
}

func (b *Builder) compileLogical(op string, value any) (string, error) {
	items, err := toSlice(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%s requires at least one filter", op)
	}

	joiner := " AND "
	if op == "$or" {
		joiner = " OR "
	}

	clauses := make([]string, 0, len(items))
	for _, item := range items {
		sub, ok := asMap(item)
		if !ok {
			return "", fmt.Errorf("%s entries must be documents, got %T", op, item)
		}
		clause, err := b.CompileFilter(sub)
		if err != nil {
			return "", err
		}
		if clause == "" {
			// an empty sub-filter matches everything
			if op == "$or" {
				return "", nil
			}
			continue
		}
		clauses = append(clauses, "("+clause+")")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "(" + strings.Join(clauses, joiner) + ")", nil
}

func (b *Builder) compileOperators(field string, ops map[string]any) (string, error) {
	var clauses []string
	for _, op := range sortedKeys(ops) {
		operand := ops[op]
		var (
			clause string
			err    error
		)

		switch op {
		case "$eq":
			clause, err = b.compileEquality(field, operand)
		case "$ne":
			if operand == nil {
				clause, err = b.Condition(field, "EXISTS", nil)
				if err == nil {
					var notNull string
					notNull, err = b.Condition(field, "<>", nil)
					clause = fmt.Sprintf("(%s AND %s)", clause, notNull)
				}
				break
			}
			var missing, ne string
			missing, err = b.Condition(field, "NOT_EXISTS", nil)
			if err == nil {
				ne, err = b.Condition(field, "<>", operand)
			}
			clause = fmt.Sprintf("(%s OR %s)", missing, ne)
		case "$gt", "$gte", "$lt", "$lte":
			clause, err = b.Condition(field, comparisonOperators[op], operand)
		case "$in":
			clause, err = b.Condition(field, "IN", operand)
		case "$nin":
			var in, missing string
			in, err = b.Condition(field, "IN", operand)
			if err == nil {
				missing, err = b.Condition(field, "NOT_EXISTS", nil)
			}
			clause = fmt.Sprintf("(%s OR NOT (%s))", missing, in)
		case "$exists":
			exists, ok := operand.(bool)
			if !ok {
				return "", fmt.Errorf("$exists on %q requires a bool, got %T", field, operand)
			}
			if exists {
				clause, err = b.Condition(field, "EXISTS", nil)
			} else {
				clause, err = b.Condition(field, "NOT_EXISTS", nil)
			}
		case "$beginsWith":
			clause, err = b.Condition(field, "BEGINS_WITH", operand)
		case "$contains":
			clause, err = b.Condition(field, "CONTAINS", operand)
		default:
			return "", fmt.Errorf("%w: %s", minqerrors.ErrInvalidOperator, op)
		}
		if err != nil {
			return "", fmt.Errorf("field %q: %w", field, err)
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

// compileEquality matches a value exactly. A nil value matches documents
// where the field is missing or null.
func (b *Builder) compileEquality(field string, value any) (string, error) {
	if value == nil {
		missing, err := b.Condition(field, "NOT_EXISTS", nil)
		if err != nil {
			return "", err
		}
		isNull, err := b.Condition(field, "=", nil)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s OR %s)", missing, isNull), nil
	}
	return b.Condition(field, "=", value)
}

// EqualityFields returns the fields a filter pins to a single value.
// It is used to seed the document created by an upsert.
func EqualityFields(filter map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range filter {
		if strings.HasPrefix(key, "$") {
			if key == "$and" {
				items, _ := toSlice(value)
				for _, item := range items {
					if sub, ok := asMap(item); ok {
						for k, v := range EqualityFields(sub) {
							out[k] = v
						}
					}
				}
			}
			continue
		}
		if ops, ok := asMap(value); ok && isOperatorDoc(ops) {
			if eq, ok := ops["$eq"]; ok {
				out[key] = eq
			}
			continue
		}
		out[key] = value
	}
	return out
}

func isOperatorDoc(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func asMap(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, true
	case core.Document:
		return m, true
	default:
		return nil, false
	}
}

func toSlice(value any) ([]any, error) {
	if items, ok := value.([]any); ok {
		return items, nil
	}
	v := reflect.ValueOf(value)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
