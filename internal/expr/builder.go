package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	minqerrors "github.com/pay-theory/minq/pkg/errors"
	"github.com/pay-theory/minq/pkg/naming"
)

// maxInValues is the DynamoDB limit on operands of an IN comparison
const maxInValues = 100

// updateActions is the order clauses appear in an update expression
var updateActions = []string{"SET", "REMOVE", "ADD"}

// Builder compiles expressions for DynamoDB operations
type Builder struct {
	// Expression components
	keyConditions     []string
	filterConditions  []string
	updateExpressions map[string][]string // SET, REMOVE, ADD
	conditions        []string
	projections       []string

	// Attribute mappings
	names  map[string]string
	values map[string]types.AttributeValue

	// Counters for placeholder generation
	nameCounter  int
	valueCounter int
}

// NewBuilder creates a new expression builder
func NewBuilder() *Builder {
	return &Builder{
		names:             make(map[string]string),
		values:            make(map[string]types.AttributeValue),
		updateExpressions: make(map[string][]string),
	}
}

// AddKeyCondition adds a key condition expression
func (b *Builder) AddKeyCondition(field string, operator string, value any) error {
	expr, err := b.Condition(field, operator, value)
	if err != nil {
		return err
	}
	b.keyConditions = append(b.keyConditions, expr)
	return nil
}

// AddFilterCondition adds a filter condition expression
func (b *Builder) AddFilterCondition(field string, operator string, value any) error {
	expr, err := b.Condition(field, operator, value)
	if err != nil {
		return err
	}
	b.filterConditions = append(b.filterConditions, expr)
	return nil
}

// AddFilterExpression adds an already compiled filter expression
func (b *Builder) AddFilterExpression(expr string) {
	if expr == "" {
		return
	}
	b.filterConditions = append(b.filterConditions, expr)
}

// AddProjection adds fields to the projection expression
func (b *Builder) AddProjection(fields ...string) {
	for _, field := range fields {
		nameRef := b.addName(field)
		b.projections = append(b.projections, nameRef)
	}
}

// AddUpdateSet adds a SET update expression
func (b *Builder) AddUpdateSet(field string, value any) error {
	if err := validatePath(field); err != nil {
		return err
	}
	nameRef := b.addName(field)
	valueRef, err := b.addValue(value)
	if err != nil {
		return err
	}
	b.updateExpressions["SET"] = append(b.updateExpressions["SET"], fmt.Sprintf("%s = %s", nameRef, valueRef))
	return nil
}

// AddUpdateAdd adds an ADD update expression (for numeric increment)
func (b *Builder) AddUpdateAdd(field string, value any) error {
	if err := validatePath(field); err != nil {
		return err
	}
	nameRef := b.addName(field)
	valueRef, err := b.addValue(value)
	if err != nil {
		return err
	}
	b.updateExpressions["ADD"] = append(b.updateExpressions["ADD"], fmt.Sprintf("%s %s", nameRef, valueRef))
	return nil
}

// AddUpdateRemove adds a REMOVE update expression
func (b *Builder) AddUpdateRemove(field string) error {
	if err := validatePath(field); err != nil {
		return err
	}
	nameRef := b.addName(field)
	b.updateExpressions["REMOVE"] = append(b.updateExpressions["REMOVE"], nameRef)
	return nil
}

// AddConditionExpression adds a condition for conditional writes
func (b *Builder) AddConditionExpression(field string, operator string, value any) error {
	expr, err := b.Condition(field, operator, value)
	if err != nil {
		return err
	}
	b.conditions = append(b.conditions, expr)
	return nil
}

// AddCondition adds an already compiled condition for conditional writes
func (b *Builder) AddCondition(expr string) {
	if expr == "" {
		return
	}
	b.conditions = append(b.conditions, expr)
}

// HasUpdate reports whether any update clause was added
func (b *Builder) HasUpdate() bool {
	for _, exprs := range b.updateExpressions {
		if len(exprs) > 0 {
			return true
		}
	}
	return false
}

// Build compiles all expressions and returns the final components
func (b *Builder) Build() ExpressionComponents {
	components := ExpressionComponents{}

	if len(b.names) > 0 {
		components.ExpressionAttributeNames = b.names
	}
	if len(b.values) > 0 {
		components.ExpressionAttributeValues = b.values
	}

	if len(b.keyConditions) > 0 {
		components.KeyConditionExpression = strings.Join(b.keyConditions, " AND ")
	}

	if len(b.filterConditions) > 0 {
		components.FilterExpression = strings.Join(b.filterConditions, " AND ")
	}

	if len(b.projections) > 0 {
		components.ProjectionExpression = strings.Join(b.projections, ", ")
	}

	var parts []string
	for _, action := range updateActions {
		if exprs := b.updateExpressions[action]; len(exprs) > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", action, strings.Join(exprs, ", ")))
		}
	}
	components.UpdateExpression = strings.Join(parts, " ")

	if len(b.conditions) > 0 {
		components.ConditionExpression = strings.Join(b.conditions, " AND ")
	}

	return components
}

// Condition builds a single condition expression without adding it to the builder
func (b *Builder) Condition(field string, operator string, value any) (string, error) {
	nameRef := b.addName(field)

	op := strings.ToUpper(operator)
	switch op {
	case "EXISTS":
		return fmt.Sprintf("attribute_exists(%s)", nameRef), nil

	case "NOT_EXISTS":
		return fmt.Sprintf("attribute_not_exists(%s)", nameRef), nil

	case "IN":
		values, err := toSlice(value)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			return "", errors.New("IN operator requires at least one value")
		}
		if len(values) > maxInValues {
			return "", fmt.Errorf("IN operator supports maximum %d values", maxInValues)
		}
		valueRefs := make([]string, 0, len(values))
		for _, v := range values {
			ref, err := b.addValue(v)
			if err != nil {
				return "", err
			}
			valueRefs = append(valueRefs, ref)
		}
		return fmt.Sprintf("%s IN (%s)", nameRef, strings.Join(valueRefs, ", ")), nil
	}

	format, ok := comparisonFormats[op]
	if !ok {
		return "", fmt.Errorf("%w: %s", minqerrors.ErrInvalidOperator, operator)
	}
	valueRef, err := b.addValue(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, nameRef, valueRef), nil
}

// comparisonFormats maps single-operand operators to their expression form
var comparisonFormats = map[string]string{
	"=":           "%s = %s",
	"EQ":          "%s = %s",
	"!=":          "%s <> %s",
	"<>":          "%s <> %s",
	"NE":          "%s <> %s",
	"<":           "%s < %s",
	"LT":          "%s < %s",
	"<=":          "%s <= %s",
	"LE":          "%s <= %s",
	">":           "%s > %s",
	"GT":          "%s > %s",
	">=":          "%s >= %s",
	"GE":          "%s >= %s",
	"BEGINS_WITH": "begins_with(%s, %s)",
	"CONTAINS":    "contains(%s, %s)",
}

// addName adds an attribute path and returns its placeholder form.
// Every path segment gets its own #nN placeholder so reserved words never clash.
func (b *Builder) addName(path string) string {
	segments := naming.SplitPath(path)
	refs := make([]string, len(segments))
	for i, segment := range segments {
		refs[i] = b.nameRef(segment)
	}
	return strings.Join(refs, ".")
}

func (b *Builder) nameRef(name string) string {
	for placeholder, attrName := range b.names {
		if attrName == name {
			return placeholder
		}
	}

	b.nameCounter++
	placeholder := fmt.Sprintf("#n%d", b.nameCounter)
	b.names[placeholder] = name
	return placeholder
}

// addValue adds an attribute value and returns its placeholder
func (b *Builder) addValue(value any) (string, error) {
	av, err := ConvertToAttributeValue(value)
	if err != nil {
		return "", err
	}

	b.valueCounter++
	placeholder := fmt.Sprintf(":v%d", b.valueCounter)
	b.values[placeholder] = av
	return placeholder, nil
}

func validatePath(path string) error {
	for _, segment := range naming.SplitPath(path) {
		if err := naming.ValidateFieldName(segment); err != nil {
			return fmt.Errorf("invalid update field %q: %w", path, err)
		}
	}
	return nil
}

// ExpressionComponents holds all expression components
type ExpressionComponents struct {
	KeyConditionExpression    string
	FilterExpression          string
	ProjectionExpression      string
	UpdateExpression          string
	ConditionExpression       string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
}
