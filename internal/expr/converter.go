package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	minqerrors "github.com/pay-theory/minq/pkg/errors"
)

// ConvertToAttributeValue converts a Go value to a DynamoDB AttributeValue
func ConvertToAttributeValue(value any) (types.AttributeValue, error) {
	if value == nil {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}

	// Special handling for time.Time
	if t, ok := value.(time.Time); ok {
		return &types.AttributeValueMemberS{Value: t.Format(time.RFC3339Nano)}, nil
	}

	v := reflect.ValueOf(value)

	switch v.Kind() {
	case reflect.String:
		return &types.AttributeValueMemberS{Value: v.String()}, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v.Int(), 10)}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &types.AttributeValueMemberN{Value: strconv.FormatUint(v.Uint(), 10)}, nil

	case reflect.Float32, reflect.Float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v.Float(), 'g', -1, 64)}, nil

	case reflect.Bool:
		return &types.AttributeValueMemberBOOL{Value: v.Bool()}, nil

	case reflect.Slice, reflect.Array:
		// Handle []byte as binary
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return &types.AttributeValueMemberB{Value: v.Bytes()}, nil
		}

		list := make([]types.AttributeValue, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := ConvertToAttributeValue(v.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return &types.AttributeValueMemberL{Value: list}, nil

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key type %v", minqerrors.ErrUnsupportedType, v.Type().Key())
		}
		m := make(map[string]types.AttributeValue, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			val, err := ConvertToAttributeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = val
		}
		return &types.AttributeValueMemberM{Value: m}, nil

	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		return ConvertToAttributeValue(v.Elem().Interface())

	default:
		return nil, fmt.Errorf("%w: %v", minqerrors.ErrUnsupportedType, v.Type())
	}
}

// ConvertDocument converts every field of a document to an attribute value
func ConvertDocument(doc map[string]any) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(doc))
	for field, value := range doc {
		av, err := ConvertToAttributeValue(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		item[field] = av
	}
	return item, nil
}

// ConvertFromAttributeValue converts a DynamoDB AttributeValue to a plain Go value.
// Numbers decode to int64 when integral and float64 otherwise.
func ConvertFromAttributeValue(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case nil:
		return nil, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return parseNumber(v.Value)
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberL:
		list := make([]any, len(v.Value))
		for i, item := range v.Value {
			val, err := ConvertFromAttributeValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = val
		}
		return list, nil
	case *types.AttributeValueMemberM:
		return ConvertItem(v.Value)
	case *types.AttributeValueMemberSS:
		return append([]string(nil), v.Value...), nil
	case *types.AttributeValueMemberNS:
		list := make([]any, len(v.Value))
		for i, n := range v.Value {
			val, err := parseNumber(n)
			if err != nil {
				return nil, err
			}
			list[i] = val
		}
		return list, nil
	case *types.AttributeValueMemberBS:
		return append([][]byte(nil), v.Value...), nil
	default:
		return nil, fmt.Errorf("%w: attribute value %T", minqerrors.ErrUnsupportedType, av)
	}
}

// ConvertItem converts a DynamoDB item to a plain map
func ConvertItem(item map[string]types.AttributeValue) (map[string]any, error) {
	out := make(map[string]any, len(item))
	for field, av := range item {
		val, err := ConvertFromAttributeValue(av)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		out[field] = val
	}
	return out, nil
}

func parseNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, nil
}
