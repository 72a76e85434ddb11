package dynamo

import (
	"bytes"
	"cmp"
	"slices"
	"time"

	"github.com/pay-theory/minq/pkg/core"
)

// sortDocuments orders docs in place by the sort keys, keeping fetch order for ties
func sortDocuments(docs []core.Document, keys core.Sort) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b core.Document) int {
		for _, key := range keys {
			av, _ := getPath(a, key.Field)
			bv, _ := getPath(b, key.Field)
			c := compareValues(av, bv)
			if key.Direction == core.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// typeRank orders values of different types: missing and null first,
// then numbers, strings, documents, lists, binary, booleans and times.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return 1
	case string:
		return 2
	case map[string]any, core.Document:
		return 3
	case []any:
		return 4
	case []byte:
		return 5
	case bool:
		return 6
	case time.Time:
		return 7
	default:
		return 8
	}
}

// compareValues returns -1, 0 or 1 comparing a and b
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch av := a.(type) {
	case nil:
		return 0
	case string:
		return cmp.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case []byte:
		return bytes.Compare(av, b.([]byte))
	case time.Time:
		return av.Compare(b.(time.Time))
	case []any:
		bv := b.([]any)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := compareValues(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	}

	if ra == 1 {
		ai, aInt := toInt64(a)
		bi, bInt := toInt64(b)
		if aInt && bInt {
			return cmp.Compare(ai, bi)
		}
		return cmp.Compare(toFloat64(a), toFloat64(b))
	}
	return 0
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	}
	i, _ := toInt64(v)
	return float64(i)
}
