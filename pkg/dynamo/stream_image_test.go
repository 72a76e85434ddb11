package dynamo

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/minq/pkg/core"
)

func TestDocumentFromStreamImage(t *testing.T) {
	streamImage := map[string]events.DynamoDBAttributeValue{
		"_id":         events.NewStringAttribute("ORDER#123"),
		"customer_id": events.NewStringAttribute("CUST456"),
		"total":       events.NewNumberAttribute("99.99"),
		"quantity":    events.NewNumberAttribute("3"),
		"paid":        events.NewBooleanAttribute(false),
		"items": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewStringAttribute("ITEM1"),
			events.NewStringAttribute("ITEM2"),
		}),
		"shipping": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"city": events.NewStringAttribute("Austin"),
		}),
		"note": events.NewNullAttribute(),
	}

	doc, err := DocumentFromStreamImage(streamImage, "")
	require.NoError(t, err)

	assert.Equal(t, core.Document{
		"_id":         "ORDER#123",
		"customer_id": "CUST456",
		"total":       99.99,
		"quantity":    int64(3),
		"paid":        false,
		"items":       []any{"ITEM1", "ITEM2"},
		"shipping":    map[string]any{"city": "Austin"},
		"note":        nil,
	}, doc)
}

func TestDocumentFromStreamImage_Sets(t *testing.T) {
	doc, err := DocumentFromStreamImage(map[string]events.DynamoDBAttributeValue{
		"tags":  events.NewStringSetAttribute([]string{"a", "b"}),
		"nums":  events.NewNumberSetAttribute([]string{"1", "2"}),
		"blobs": events.NewBinarySetAttribute([][]byte{[]byte("data1")}),
		"raw":   events.NewBinaryAttribute([]byte("data")),
	}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, doc["tags"])
	assert.Equal(t, []any{int64(1), int64(2)}, doc["nums"])
	assert.Equal(t, [][]byte{[]byte("data1")}, doc["blobs"])
	assert.Equal(t, []byte("data"), doc["raw"])
}

func TestDocumentFromStreamImage_RenamesKeyAttribute(t *testing.T) {
	doc, err := DocumentFromStreamImage(map[string]events.DynamoDBAttributeValue{
		"PK":   events.NewStringAttribute("USER#1"),
		"name": events.NewStringAttribute("Ada"),
	}, "PK")
	require.NoError(t, err)

	assert.Equal(t, core.Document{"_id": "USER#1", "name": "Ada"}, doc)
}

func TestDocumentFromStreamImage_EmptyImage(t *testing.T) {
	doc, err := DocumentFromStreamImage(map[string]events.DynamoDBAttributeValue{}, "")
	require.NoError(t, err)
	assert.Empty(t, doc)
}
