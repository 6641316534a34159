package quarry

import (
	"context"
	"fmt"
	"strings"
)

// Executor translates model-level CRUD and fetch operations into statements
// against one connection, and rows back into instances. It is cheap to
// construct; the prefetch engine builds fresh executors for related models.
type Executor struct {
	meta *Meta
	db   DBClient

	// prefetchMap maps a top-level relation field to the set of forwarded
	// nested paths to prefetch on its related objects.
	prefetchMap     map[string]map[string]struct{}
	prefetchQueries map[string]*Query
}

// NewExecutor builds an executor for one model over one connection.
func NewExecutor(meta *Meta, db DBClient) *Executor {
	return &Executor{meta: meta, db: db}
}

// WithPrefetchQuery registers a caller-built related query used instead of
// the default unfiltered fetch when the named relation is prefetched.
func (e *Executor) WithPrefetchQuery(field string, q *Query) *Executor {
	if e.prefetchQueries == nil {
		e.prefetchQueries = map[string]*Query{}
	}
	e.prefetchQueries[field] = q
	return e
}

// fieldToDB serializes one field value: the backend coercion override wins,
// then a per-field serializer, then the default.
func (e *Executor) fieldToDB(f *Field, value interface{}, inst *Instance) (interface{}, error) {
	if fn, ok := e.db.Dialect().CoerceOverride(f.Kind); ok {
		return fn(f, value, inst)
	}
	if f.ToDB != nil {
		return f.ToDB(f, value, inst)
	}
	return DefaultToDB(f, value, inst)
}

// insertPlanKey combines connection identity and table name.
func (e *Executor) insertPlanKey() string {
	return e.db.ConnectionName() + ":" + e.meta.Table
}

// Insert persists a new instance and assigns the generated primary key.
// The column projection and statement text are computed at most once per
// (connection, table) pair and cached.
func (e *Executor) Insert(ctx context.Context, inst *Instance) (*Instance, error) {
	plan, err := e.db.InsertCache().GetOrBuild(e.insertPlanKey(), func() (*InsertPlan, error) {
		fields, columns := e.meta.InsertableFields()
		return &InsertPlan{
			Fields:  fields,
			Columns: columns,
			SQL:     e.db.Dialect().InsertSQL(e.meta.Table, columns),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, 0, len(plan.Fields))
	for _, name := range plan.Fields {
		f, _ := e.meta.Field(name)
		v, err := e.fieldToDB(f, inst.Get(name), inst)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	id, err := e.db.ExecuteInsert(ctx, plan.SQL, values...)
	if err != nil {
		return nil, err
	}
	inst.SetID(id)
	return inst, nil
}

// Update writes every non-generated field, filtered to the instance's id.
// Last write wins; there is no optimistic concurrency check.
func (e *Executor) Update(ctx context.Context, inst *Instance) (*Instance, error) {
	id, ok := inst.ID()
	if !ok {
		return nil, NewError(KindOperational, "cannot update unpersisted %s instance", e.meta.Table)
	}

	d := e.db.Dialect()
	b := &Binder{Dialect: d}
	fields, columns := e.meta.InsertableFields()
	sets := make([]string, 0, len(fields))
	for i, name := range fields {
		f, _ := e.meta.Field(name)
		v, err := e.fieldToDB(f, inst.Get(name), inst)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", d.Quote(columns[i]), b.Add(v)))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.Quote(e.meta.Table), strings.Join(sets, ", "), d.Quote("id"), b.Add(id))

	if err := e.db.Execute(ctx, query, b.Args()...); err != nil {
		return nil, err
	}
	return inst, nil
}

// Delete removes the row matching the instance's id.
func (e *Executor) Delete(ctx context.Context, inst *Instance) (*Instance, error) {
	id, ok := inst.ID()
	if !ok {
		return nil, NewError(KindOperational, "cannot delete unpersisted %s instance", e.meta.Table)
	}

	d := e.db.Dialect()
	b := &Binder{Dialect: d}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		d.Quote(e.meta.Table), d.Quote("id"), b.Add(id))

	if err := e.db.Execute(ctx, query, b.Args()...); err != nil {
		return nil, err
	}
	return inst, nil
}

// Select executes the query, maps each row to an instance, copies any
// custom (computed) columns through, and runs relation prefetching over the
// whole result list.
func (e *Executor) Select(ctx context.Context, q *Query, customFields []string) ([]*Instance, error) {
	query, args, err := q.SelectSQL(e.db.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := e.db.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	instances := make([]*Instance, 0, len(rows))
	for _, row := range rows {
		inst := e.meta.FromRow(row)
		for _, field := range customFields {
			inst.setCustom(field, row[field])
		}
		instances = append(instances, inst)
	}
	return e.FetchForList(ctx, instances, q.PrefetchPaths()...)
}

// Explain executes the backend's EXPLAIN-prefixed form of the query and
// returns the raw backend-specific result.
func (e *Executor) Explain(ctx context.Context, q *Query) ([]Row, error) {
	query, args, err := q.SelectSQL(e.db.Dialect())
	if err != nil {
		return nil, err
	}
	return e.db.ExecuteQuery(ctx, e.db.Dialect().ExplainPrefix()+" "+query, args...)
}
