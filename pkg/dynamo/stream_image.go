package dynamo

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/minq/internal/expr"
	"github.com/pay-theory/minq/pkg/core"
	minqerrors "github.com/pay-theory/minq/pkg/errors"
)

// DocumentFromStreamImage converts a DynamoDB Streams image, as delivered to a
// Lambda handler, into a document. idAttribute names the key attribute that
// holds _id; an empty value means the attribute is already called _id.
func DocumentFromStreamImage(image map[string]events.DynamoDBAttributeValue, idAttribute string) (core.Document, error) {
	item := make(map[string]types.AttributeValue, len(image))
	for field, value := range image {
		av, err := streamToAttributeValue(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		item[field] = av
	}

	m, err := expr.ConvertItem(item)
	if err != nil {
		return nil, err
	}
	doc := core.Document(m)
	if idAttribute != "" && idAttribute != core.IDField {
		if id, ok := doc[idAttribute]; ok {
			delete(doc, idAttribute)
			doc[core.IDField] = id
		}
	}
	return doc, nil
}

func streamToAttributeValue(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, len(list))
		for i, item := range list {
			av, err := streamToAttributeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = av
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m := v.Map()
		out := make(map[string]types.AttributeValue, len(m))
		for k, item := range m {
			av, err := streamToAttributeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = av
		}
		return &types.AttributeValueMemberM{Value: out}, nil
	default:
		return nil, fmt.Errorf("%w: stream data type %v", minqerrors.ErrUnsupportedType, v.DataType())
	}
}
