package dynamo

import (
	"github.com/pay-theory/minq/pkg/core"
	"github.com/pay-theory/minq/pkg/naming"
)

// projection is a parsed field selection
type projection struct {
	include   []string
	exclude   []string
	excludeID bool
}

func parseProjection(p core.Document) projection {
	var out projection
	for field, v := range p {
		if field == core.IDField {
			out.excludeID = !truthy(v)
			continue
		}
		if truthy(v) {
			out.include = append(out.include, field)
		} else {
			out.exclude = append(out.exclude, field)
		}
	}
	return out
}

func (p projection) inclusive() bool {
	return len(p.include) > 0
}

// apply returns a new document restricted by the projection
func (p projection) apply(doc core.Document) core.Document {
	if p.inclusive() {
		out := make(core.Document, len(p.include)+1)
		for _, field := range p.include {
			if v, ok := getPath(doc, field); ok {
				setPath(out, field, v)
			}
		}
		if id, ok := doc[core.IDField]; ok && !p.excludeID {
			out[core.IDField] = id
		}
		return out
	}

	out := deepCopy(doc)
	for _, field := range p.exclude {
		deletePath(out, field)
	}
	if p.excludeID {
		delete(out, core.IDField)
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

func getPath(doc map[string]any, path string) (any, bool) {
	segments := naming.SplitPath(path)
	var cur any = doc
	for _, segment := range segments {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc map[string]any, path string, v any) {
	segments := naming.SplitPath(path)
	cur := doc
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asMap(cur[segment])
		if !ok {
			next = make(map[string]any)
			cur[segment] = next
		}
		cur = next
	}
	cur[segments[len(segments)-1]] = v
}

func deletePath(doc map[string]any, path string) {
	segments := naming.SplitPath(path)
	cur := doc
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asMap(cur[segment])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segments[len(segments)-1])
}

// deepCopy copies nested maps so path deletion never touches the source
func deepCopy(doc core.Document) core.Document {
	out := make(core.Document, len(doc))
	for k, v := range doc {
		if m, ok := asMap(v); ok {
			out[k] = map[string]any(deepCopy(m))
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case core.Document:
		return m, true
	}
	return nil, false
}
