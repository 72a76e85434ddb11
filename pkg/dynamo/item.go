package dynamo

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/minq/internal/expr"
	"github.com/pay-theory/minq/pkg/core"
)

// toItem converts a document to a DynamoDB item, storing _id under the key attribute
func (db *Database) toItem(doc core.Document) (map[string]types.AttributeValue, error) {
	return expr.ConvertDocument(db.toStored(doc))
}

// fromItem converts a DynamoDB item back to a document
func (db *Database) fromItem(item map[string]types.AttributeValue) (core.Document, error) {
	m, err := expr.ConvertItem(item)
	if err != nil {
		return nil, err
	}
	doc := core.Document(m)
	if db.idAttribute == core.IDField {
		return doc, nil
	}
	if id, ok := doc[db.idAttribute]; ok {
		delete(doc, db.idAttribute)
		doc[core.IDField] = id
	}
	return doc, nil
}

// keyOf builds the primary key for an identifier
func (db *Database) keyOf(id any) (map[string]types.AttributeValue, error) {
	av, err := expr.ConvertToAttributeValue(id)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{db.idAttribute: av}, nil
}

// toStored renames top-level _id to the key attribute, recursing into $and and $or
func (db *Database) toStored(doc core.Document) core.Document {
	if db.idAttribute == core.IDField || doc == nil {
		return doc
	}
	out := make(core.Document, len(doc))
	for k, v := range doc {
		switch k {
		case core.IDField:
			out[db.idAttribute] = v
		case "$and", "$or":
			out[k] = db.storedList(v)
		default:
			out[k] = v
		}
	}
	return out
}

func (db *Database) storedList(v any) any {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []core.Document:
		for _, d := range list {
			items = append(items, d)
		}
	case []map[string]any:
		for _, d := range list {
			items = append(items, d)
		}
	default:
		return v
	}

	out := make([]any, len(items))
	for i, item := range items {
		switch d := item.(type) {
		case core.Document:
			out[i] = db.toStored(d)
		case map[string]any:
			out[i] = db.toStored(d)
		default:
			out[i] = item
		}
	}
	return out
}

// pinnedID returns the identifier a filter selects by plain equality
func pinnedID(filter core.Document) (any, bool) {
	v, ok := filter[core.IDField]
	if !ok || v == nil {
		return nil, false
	}
	switch ops := v.(type) {
	case map[string]any:
		return operatorEq(ops)
	case core.Document:
		return operatorEq(ops)
	}
	return v, true
}

func operatorEq(ops map[string]any) (any, bool) {
	if len(ops) != 1 {
		return nil, false
	}
	eq, ok := ops["$eq"]
	if !ok || eq == nil {
		return nil, false
	}
	return eq, true
}
