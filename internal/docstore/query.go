package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FilterOp is a comparison supported in query filters.
type FilterOp string

const (
	OpEqual         FilterOp = "=="
	OpNotEqual      FilterOp = "!="
	OpLess          FilterOp = "<"
	OpLessEqual     FilterOp = "<="
	OpGreater       FilterOp = ">"
	OpGreaterEqual  FilterOp = ">="
	OpArrayContains FilterOp = "array-contains"
	OpIn            FilterOp = "in"
)

// Filter restricts a collection query to documents whose Field compares to Value.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Order sorts a collection query.
type Order struct {
	Field string
	Desc  bool
}

// Query describes what a live subscription targets: a document path, or a
// collection path with optional filters, ordering and limit.
type Query struct {
	Path    string
	Filters []Filter
	Orders  []Order
	Limit   int
}

// Doc returns a query for a single document.
func Doc(path string) Query {
	return Query{Path: path}
}

// Collection returns a query over a collection.
func Collection(path string) Query {
	return Query{Path: path}
}

// Where appends a filter and returns the query.
func (q Query) Where(field string, op FilterOp, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy appends an ordering and returns the query.
func (q Query) OrderBy(field string, desc bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Desc: desc})
	return q
}

// WithLimit caps the number of documents returned.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// IsDocument reports whether the query targets one document.
func (q Query) IsDocument() bool {
	return IsDocumentPath(q.Path)
}

// Validate checks the descriptor shape.
func (q Query) Validate() error {
	parts, err := Segments(q.Path)
	if err != nil {
		return err
	}
	if len(parts)%2 == 0 && (len(q.Filters) > 0 || len(q.Orders) > 0 || q.Limit != 0) {
		return fmt.Errorf("%w: document query %q cannot filter, order or limit", ErrInvalid, q.Path)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalid)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter without field", ErrInvalid)
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpArrayContains, OpIn:
		default:
			return fmt.Errorf("%w: unsupported filter op %q", ErrInvalid, f.Op)
		}
	}
	return nil
}

// Key is the semantic identity of the descriptor: two queries with equal keys
// target the same result set regardless of how they were built.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Path)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|w:%s%s%s", f.Field, f.Op, valueKey(f.Value))
	}
	for _, o := range q.Orders {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, "|o:%s:%s", o.Field, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|l:%d", q.Limit)
	}
	return b.String()
}

func valueKey(v any) string {
	switch t := v.(type) {
	case time.Time:
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = valueKey(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []string:
		return fmt.Sprintf("%q", t)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Apply evaluates the query over a set of documents already known to live in
// the queried collection. Backends without native query support use it.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.matches(d.Data) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.Orders {
			c := compare(Lookup(out[i].Data, o.Field), Lookup(out[j].Data, o.Field))
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].Path < out[j].Path
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (q Query) matches(data map[string]any) bool {
	for _, f := range q.Filters {
		v, ok := lookup(data, f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if compare(v, f.Value) != 0 {
				return false
			}
		case OpNotEqual:
			if compare(v, f.Value) == 0 {
				return false
			}
		case OpLess:
			if compare(v, f.Value) >= 0 {
				return false
			}
		case OpLessEqual:
			if compare(v, f.Value) > 0 {
				return false
			}
		case OpGreater:
			if compare(v, f.Value) <= 0 {
				return false
			}
		case OpGreaterEqual:
			if compare(v, f.Value) < 0 {
				return false
			}
		case OpArrayContains:
			if !containsValue(v, f.Value) {
				return false
			}
		case OpIn:
			if !containsValue(f.Value, v) {
				return false
			}
		}
	}
	return true
}

// Lookup reads a dotted field path from nested maps.
func Lookup(data map[string]any, field string) any {
	v, _ := lookup(data, field)
	return v
}

func lookup(data map[string]any, field string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func containsValue(list, v any) bool {
	switch l := list.(type) {
	case []any:
		for _, e := range l {
			if compare(e, v) == 0 {
				return true
			}
		}
	case []string:
		for _, e := range l {
			if compare(e, v) == 0 {
				return true
			}
		}
	}
	return false
}

// compare orders values of the same kind; mismatched kinds order by kind rank.
func compare(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case nil:
		if b == nil {
			return 0
		}
	}
	ra, rb := kindRank(a), kindRank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	}
	return 5
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
