package core

// Document is a mapping of field names to values
type Document map[string]any

// Clone returns a shallow copy of the document. A nil document clones to an empty one.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Without returns a shallow copy of the document without the given field
func (d Document) Without(field string) Document {
	out := make(Document, len(d))
	for k, v := range d {
		if k == field {
			continue
		}
		out[k] = v
	}
	return out
}

// ID returns the identifier field value and whether it is present
func (d Document) ID() (any, bool) {
	v, ok := d[IDField]
	return v, ok
}

// SortDirection is the direction of a sort key
type SortDirection int

const (
	// Ascending sorts from low to high
	Ascending SortDirection = 1

	// Descending sorts from high to low
	Descending SortDirection = -1
)

// SortKey is a single (field, direction) sort component
type SortKey struct {
	Field     string
	Direction SortDirection
}

// Sort is an ordered list of sort keys
type Sort []SortKey

// Asc returns an ascending sort key
func Asc(field string) SortKey {
	return SortKey{Field: field, Direction: Ascending}
}

// Desc returns a descending sort key
func Desc(field string) SortKey {
	return SortKey{Field: field, Direction: Descending}
}

// Options holds the query and write options accumulated by a builder
type Options struct {
	// Safe requests acknowledged writes
	Safe bool

	// Sort is the requested ordering
	Sort Sort

	// Limit caps the number of documents returned; nil means unset
	Limit *int64

	// Skip is the number of documents skipped; nil means unset
	Skip *int64

	// Upsert inserts a document when an update matches nothing
	Upsert bool

	// ReturnNew asks for the post-update document where a driver supports it
	ReturnNew bool
}

// DefaultOptions returns the options a fresh builder starts with
func DefaultOptions() Options {
	return Options{Safe: true}
}

// Clone returns a copy of the options that shares no mutable state with the receiver
func (o Options) Clone() Options {
	out := o
	if o.Sort != nil {
		out.Sort = append(Sort(nil), o.Sort...)
	}
	if o.Limit != nil {
		limit := *o.Limit
		out.Limit = &limit
	}
	if o.Skip != nil {
		skip := *o.Skip
		out.Skip = &skip
	}
	return out
}

// LimitValue returns the limit, or 0 when unset
func (o Options) LimitValue() int64 {
	if o.Limit == nil {
		return 0
	}
	return *o.Limit
}

// SkipValue returns the skip, or 0 when unset
func (o Options) SkipValue() int64 {
	if o.Skip == nil {
		return 0
	}
	return *o.Skip
}
