package expr_test

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/minq/internal/expr"
	"github.com/pay-theory/minq/pkg/core"
	minqerrors "github.com/pay-theory/minq/pkg/errors"
)

func TestCompileFilter_EqualityAndComparison(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(map[string]any{
		"status": "active",
		"age":    map[string]any{"$gte": 21},
	})
	require.NoError(t, err)

	assert.Equal(t, "#n1 >= :v1 AND #n2 = :v2", clause)

	components := b.Build()
	assert.Equal(t, map[string]string{"#n1": "age", "#n2": "status"}, components.ExpressionAttributeNames)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "21"}, components.ExpressionAttributeValues[":v1"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "active"}, components.ExpressionAttributeValues[":v2"])
}

func TestCompileFilter_Empty(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, clause)
}

func TestCompileFilter_NilMatchesMissingOrNull(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(map[string]any{"deleted": nil})
	require.NoError(t, err)

	assert.Equal(t, "(attribute_not_exists(#n1) OR #n1 = :v1)", clause)
	assert.Equal(t, &types.AttributeValueMemberNULL{Value: true}, b.Build().ExpressionAttributeValues[":v1"])
}

func TestCompileFilter_NestedPath(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(core.Document{"address.city": "Paris"})
	require.NoError(t, err)

	assert.Equal(t, "#n1.#n2 = :v1", clause)
	assert.Equal(t, map[string]string{"#n1": "address", "#n2": "city"}, b.Build().ExpressionAttributeNames)
}

func TestCompileFilter_Or(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(map[string]any{
		"$or": []any{
			map[string]any{"a": 1},
			core.Document{"b": 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "((#n1 = :v1) OR (#n2 = :v2))", clause)
}

func TestCompileFilter_InAndNin(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(map[string]any{"tier": map[string]any{"$in": []string{"gold", "silver"}}})
	require.NoError(t, err)
	assert.Equal(t, "#n1 IN (:v1, :v2)", clause)

	b = expr.NewBuilder()
	clause, err = b.CompileFilter(map[string]any{"tier": map[string]any{"$nin": []string{"gold", "silver"}}})
	require.NoError(t, err)
	assert.Equal(t, "(attribute_not_exists(#n1) OR NOT (#n1 IN (:v1, :v2)))", clause)
}

func TestCompileFilter_Exists(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(map[string]any{"email": map[string]any{"$exists": true}})
	require.NoError(t, err)
	assert.Equal(t, "attribute_exists(#n1)", clause)

	_, err = expr.NewBuilder().CompileFilter(map[string]any{"email": map[string]any{"$exists": "yes"}})
	assert.Error(t, err)
}

func TestCompileFilter_InvalidOperators(t *testing.T) {
	_, err := expr.NewBuilder().CompileFilter(map[string]any{"a": map[string]any{"$regex": "x"}})
	assert.ErrorIs(t, err, minqerrors.ErrInvalidOperator)

	_, err = expr.NewBuilder().CompileFilter(map[string]any{"$where": "true"})
	assert.ErrorIs(t, err, minqerrors.ErrInvalidOperator)
}

func TestCompileFilter_PlainSubdocumentIsEquality(t *testing.T) {
	b := expr.NewBuilder()
	clause, err := b.CompileFilter(map[string]any{"meta": map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "#n1 = :v1", clause)
	assert.IsType(t, &types.AttributeValueMemberM{}, b.Build().ExpressionAttributeValues[":v1"])
}

func TestCompileUpdate_PlainDocumentIsSet(t *testing.T) {
	b := expr.NewBuilder()
	require.NoError(t, b.CompileUpdate(map[string]any{"name": "x", "age": 3}))

	assert.True(t, b.HasUpdate())
	assert.Equal(t, "SET #n1 = :v1, #n2 = :v2", b.Build().UpdateExpression)
}

func TestCompileUpdate_Operators(t *testing.T) {
	b := expr.NewBuilder()
	err := b.CompileUpdate(map[string]any{
		"$set":   map[string]any{"a": 1},
		"$unset": map[string]any{"b": ""},
		"$inc":   map[string]any{"c": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "SET #n1 = if_not_exists(#n1, :v1) + :v2, #n2 = :v3 REMOVE #n3", b.Build().UpdateExpression)
}

func TestCompileUpdate_Errors(t *testing.T) {
	assert.Error(t, expr.NewBuilder().CompileUpdate(map[string]any{}))
	assert.Error(t, expr.NewBuilder().CompileUpdate(map[string]any{"$set": map[string]any{"a": 1}, "b": 2}))
	assert.Error(t, expr.NewBuilder().CompileUpdate(map[string]any{"_id": "x"}, "_id"))
	assert.ErrorIs(t, expr.NewBuilder().CompileUpdate(map[string]any{"$push": map[string]any{"a": 1}}), minqerrors.ErrInvalidOperator)
	assert.Error(t, expr.NewBuilder().CompileUpdate(map[string]any{"$set": "not a document"}))
}

func TestUpdateFieldValidation(t *testing.T) {
	b := expr.NewBuilder()
	require.Error(t, b.AddUpdateSet("", 1))
	require.Error(t, b.AddUpdateRemove("a..b"))
	require.Error(t, b.AddUpdateAdd("bad\x00name", 1))
	assert.False(t, b.HasUpdate())
}

func TestBuilder_ConditionsAndProjection(t *testing.T) {
	b := expr.NewBuilder()
	require.NoError(t, b.AddKeyCondition("_id", "=", "abc"))
	require.NoError(t, b.AddConditionExpression("_id", "EXISTS", nil))
	b.AddProjection("name", "_id")

	components := b.Build()
	assert.Equal(t, "#n1 = :v1", components.KeyConditionExpression)
	assert.Equal(t, "attribute_exists(#n1)", components.ConditionExpression)
	assert.Equal(t, "#n2, #n1", components.ProjectionExpression)
	assert.Empty(t, components.UpdateExpression)
}

func TestBuilder_InLimits(t *testing.T) {
	_, err := expr.NewBuilder().Condition("a", "IN", []int{})
	assert.Error(t, err)

	_, err = expr.NewBuilder().Condition("a", "IN", make([]int, 101))
	assert.Error(t, err)

	_, err = expr.NewBuilder().Condition("a", "IN", "scalar")
	assert.Error(t, err)
}

func TestEqualityFields(t *testing.T) {
	fields := expr.EqualityFields(map[string]any{
		"email":  "a@example.com",
		"age":    map[string]any{"$gt": 3},
		"status": map[string]any{"$eq": "new"},
		"$and":   []any{map[string]any{"tenant": "t1"}},
		"$or":    []any{map[string]any{"x": 1}},
	})

	assert.Equal(t, map[string]any{
		"email":  "a@example.com",
		"status": "new",
		"tenant": "t1",
	}, fields)
}

func TestConvertRoundTrip(t *testing.T) {
	in := map[string]any{
		"s":    "text",
		"i":    42,
		"f":    1.5,
		"b":    true,
		"null": nil,
		"list": []any{"a", 2},
		"doc":  core.Document{"nested": int64(7)},
		"raw":  []byte("xy"),
	}

	item, err := expr.ConvertDocument(in)
	require.NoError(t, err)

	out, err := expr.ConvertItem(item)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"s":    "text",
		"i":    int64(42),
		"f":    1.5,
		"b":    true,
		"null": nil,
		"list": []any{"a", int64(2)},
		"doc":  map[string]any{"nested": int64(7)},
		"raw":  []byte("xy"),
	}, out)
}

func TestConvertToAttributeValue_Special(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	av, err := expr.ConvertToAttributeValue(ts)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "2024-01-02T03:04:05Z"}, av)

	var nilPtr *string
	av, err = expr.ConvertToAttributeValue(nilPtr)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberNULL{Value: true}, av)

	_, err = expr.ConvertToAttributeValue(struct{ A int }{1})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)

	_, err = expr.ConvertToAttributeValue(map[int]string{1: "a"})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)
}

type address struct{ City string }

func TestBuilder_UnconvertibleValuesAreRejected(t *testing.T) {
	b := expr.NewBuilder()

	err := b.CompileUpdate(map[string]any{"$set": map[string]any{"addr": address{"Oslo"}}})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)

	err = b.CompileUpdate(map[string]any{"$inc": map[string]any{"n": address{"Oslo"}}})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)

	err = b.AddUpdateSetIfMissing("addr", address{"Oslo"})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)

	err = b.AddUpdateAdd("n", address{"Oslo"})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)

	_, err = b.CompileFilter(map[string]any{"addr": address{"Oslo"}})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)

	_, err = b.CompileFilter(map[string]any{"addr": map[string]any{"$in": []any{"x", address{"Oslo"}}}})
	assert.ErrorIs(t, err, minqerrors.ErrUnsupportedType)

	assert.False(t, b.HasUpdate())
}

func TestConvertFromAttributeValue_Sets(t *testing.T) {
	v, err := expr.ConvertFromAttributeValue(&types.AttributeValueMemberNS{Value: []string{"1", "2.5"}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), 2.5}, v)

	v, err = expr.ConvertFromAttributeValue(&types.AttributeValueMemberSS{Value: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v)

	_, err = expr.ConvertFromAttributeValue(&types.AttributeValueMemberN{Value: "nope"})
	assert.Error(t, err)
}
