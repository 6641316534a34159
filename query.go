package quarry

import (
	"fmt"
	"reflect"
	"strings"
)

// Op enumerates the filter operators a query predicate can use. Backends may
// override the rendering of any operator through Dialect.FilterOverride.
type Op int

const (
	OpEq Op = iota + 1
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpIsNull
	OpContains
	OpStartsWith
	OpEndsWith
	OpIContains
	OpIStartsWith
	OpIEndsWith
)

// Filter is one predicate over a logical field.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Binder accumulates bound parameters while a statement is rendered and
// hands out the dialect's placeholder for each.
type Binder struct {
	Dialect Dialect
	args    []interface{}
}

// Add binds a value and returns its placeholder.
func (b *Binder) Add(value interface{}) string {
	b.args = append(b.args, value)
	return b.Dialect.BinVar(len(b.args))
}

// Args returns the bound parameters in placeholder order.
func (b *Binder) Args() []interface{} { return b.args }

// PredicateFunc renders one predicate. The column arrives already quoted
// (and qualified when the statement joins tables); values are bound through
// the Binder, never interpolated.
type PredicateFunc func(b *Binder, column string, value interface{}) (string, error)

// Query is the minimal filterable fetch over one model that the executor
// and the prefetch engine consume. The full query-building DSL lives above
// this layer; prefetch only needs filters, ordering and forwarded prefetch
// paths.
type Query struct {
	meta     *Meta
	filters  []Filter
	orderBy  []string
	limit    int
	offset   int
	prefetch []string
}

// NewQuery builds an unfiltered query over a model.
func NewQuery(meta *Meta) *Query {
	return &Query{meta: meta}
}

// Meta returns the model the query targets.
func (q *Query) Meta() *Meta { return q.meta }

// Clone returns an independent copy; further Filter or Prefetch calls do not
// touch the original.
func (q *Query) Clone() *Query {
	clone := &Query{meta: q.meta, limit: q.limit, offset: q.offset}
	clone.filters = append([]Filter(nil), q.filters...)
	clone.orderBy = append([]string(nil), q.orderBy...)
	clone.prefetch = append([]string(nil), q.prefetch...)
	return clone
}

// Filter appends a predicate. All predicates combine with AND.
func (q *Query) Filter(field string, op Op, value interface{}) *Query {
	q.filters = append(q.filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy appends ordering by logical field names.
func (q *Query) OrderBy(fields ...string) *Query {
	q.orderBy = append(q.orderBy, fields...)
	return q
}

// Limit caps the result size.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Prefetch requests eager loading of relation paths ("author",
// "participants.team") on the fetched instances.
func (q *Query) Prefetch(paths ...string) *Query {
	q.prefetch = append(q.prefetch, paths...)
	return q
}

// PrefetchPaths returns the requested relation paths.
func (q *Query) PrefetchPaths() []string { return q.prefetch }

// Filters returns the accumulated predicates.
func (q *Query) Filters() []Filter { return q.filters }

// SelectSQL renders the query as a SELECT over the model's declared columns.
func (q *Query) SelectSQL(d Dialect) (string, []interface{}, error) {
	b := &Binder{Dialect: d}

	cols := make([]string, 0, len(q.meta.fieldOrder))
	for _, c := range q.meta.ColumnNames() {
		cols = append(cols, d.Quote(c))
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT %s FROM %s", strings.Join(cols, ", "), d.Quote(q.meta.Table))

	where, err := q.whereSQL(d, b, "")
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql.WriteString(" WHERE ")
		sql.WriteString(where)
	}
	if len(q.orderBy) > 0 {
		order := make([]string, 0, len(q.orderBy))
		for _, f := range q.orderBy {
			column, ok := q.meta.Column(f)
			if !ok {
				return "", nil, NewError(KindOperational, "unknown field %s for %s", f, q.meta.Table)
			}
			order = append(order, d.Quote(column))
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(order, ", "))
	}
	if q.limit > 0 {
		fmt.Fprintf(&sql, " LIMIT %d", q.limit)
	}
	if q.offset > 0 {
		fmt.Fprintf(&sql, " OFFSET %d", q.offset)
	}
	return sql.String(), b.Args(), nil
}

// whereSQL renders all filters joined with AND. qualifier, when non-empty,
// table-qualifies every column for statements that join other tables.
func (q *Query) whereSQL(d Dialect, b *Binder, qualifier string) (string, error) {
	if len(q.filters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(q.filters))
	for _, f := range q.filters {
		column, ok := q.meta.Column(f.Field)
		if !ok {
			return "", NewError(KindOperational, "unknown field %s for %s", f.Field, q.meta.Table)
		}
		quoted := d.Quote(column)
		if qualifier != "" {
			quoted = d.Quote(qualifier) + "." + quoted
		}
		fragment, err := renderPredicate(d, b, quoted, f)
		if err != nil {
			return "", err
		}
		parts = append(parts, fragment)
	}
	return strings.Join(parts, " AND "), nil
}

// renderPredicate picks the backend override for the operator when one is
// registered, the default rendering otherwise.
func renderPredicate(d Dialect, b *Binder, column string, f Filter) (string, error) {
	if fn, ok := d.FilterOverride(f.Op); ok {
		return fn(b, column, f.Value)
	}
	fn, ok := defaultPredicates[f.Op]
	if !ok {
		return "", NewError(KindOperational, "unsupported filter operator %d", f.Op)
	}
	return fn(b, column, f.Value)
}

func comparison(operator string) PredicateFunc {
	return func(b *Binder, column string, value interface{}) (string, error) {
		return fmt.Sprintf("%s %s %s", column, operator, b.Add(value)), nil
	}
}

func like(pattern string) PredicateFunc {
	return func(b *Binder, column string, value interface{}) (string, error) {
		return fmt.Sprintf("%s LIKE %s", column, b.Add(fmt.Sprintf(pattern, value))), nil
	}
}

func insensitiveLike(pattern string) PredicateFunc {
	return func(b *Binder, column string, value interface{}) (string, error) {
		return fmt.Sprintf("UPPER(%s) LIKE UPPER(%s)", column, b.Add(fmt.Sprintf(pattern, value))), nil
	}
}

func inPredicate(b *Binder, column string, value interface{}) (string, error) {
	values, err := valueList(value)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		// empty IN set matches nothing
		return "1=0", nil
	}
	placeholders := make([]string, 0, len(values))
	for _, v := range values {
		placeholders = append(placeholders, b.Add(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), nil
}

func isNullPredicate(b *Binder, column string, value interface{}) (string, error) {
	if want, ok := value.(bool); ok && !want {
		return column + " IS NOT NULL", nil
	}
	return column + " IS NULL", nil
}

var defaultPredicates = map[Op]PredicateFunc{
	OpEq:          comparison("="),
	OpNe:          comparison("<>"),
	OpGt:          comparison(">"),
	OpGte:         comparison(">="),
	OpLt:          comparison("<"),
	OpLte:         comparison("<="),
	OpIn:          inPredicate,
	OpIsNull:      isNullPredicate,
	OpContains:    like("%%%v%%"),
	OpStartsWith:  like("%v%%"),
	OpEndsWith:    like("%%%v"),
	OpIContains:   insensitiveLike("%%%v%%"),
	OpIStartsWith: insensitiveLike("%v%%"),
	OpIEndsWith:   insensitiveLike("%%%v"),
}

// DefaultPredicate exposes the default rendering so dialect packages can
// delegate for the operators they do not override.
func DefaultPredicate(op Op) (PredicateFunc, bool) {
	fn, ok := defaultPredicates[op]
	return fn, ok
}

// valueList normalizes any slice or array into []interface{}.
func valueList(value interface{}) ([]interface{}, error) {
	if vs, ok := value.([]interface{}); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, NewError(KindOperational, "IN filter requires a slice, got %T", value)
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
