package docstore

import (
	"fmt"
	"regexp"
)

// Operator is a query filter comparison.
type Operator string

const (
	OpEqual         Operator = "=="
	OpLess          Operator = "<"
	OpLessEqual     Operator = "<="
	OpGreater       Operator = ">"
	OpGreaterEqual  Operator = ">="
	OpArrayContains Operator = "array-contains"
)

// Filter restricts a query on a single field.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	Limit      int
}

// From starts a query over a collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of the query with an added filter.
func (q Query) Where(field string, op Operator, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// WithLimit returns a copy of the query capped to n results. Zero means unlimited.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

func (q Query) validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query: missing collection")
	}
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("query: invalid field %q", f.Field)
		}
		switch f.Op {
		case OpEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpArrayContains:
		default:
			return fmt.Errorf("query: unsupported operator %q", f.Op)
		}
	}
	return nil
}
