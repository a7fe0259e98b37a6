package store

import "fmt"

type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Order struct {
	Field     string
	Direction Direction
}

// Query describes a read against one collection independently of the
// backend that will run it. Builders return copies so a Query can be shared.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int
}

func From(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: field, Direction: dir})
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

func (q Query) String() string {
	s := q.Collection
	for _, f := range q.Filters {
		s += fmt.Sprintf(" where %s %s %v", f.Field, f.Op, f.Value)
	}
	for _, o := range q.OrderBy {
		s += fmt.Sprintf(" order by %s %s", o.Field, o.Direction)
	}
	if q.Limit > 0 {
		s += fmt.Sprintf(" limit %d", q.Limit)
	}
	return s
}

func (q Query) expect(collection string) error {
	if q.Collection != collection {
		return fmt.Errorf("%w: expected collection %q, got %q", ErrUnsupportedQuery, collection, q.Collection)
	}
	return nil
}
