package quarry

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Aliases used by the many-to-many join so the through-table keys never
// collide with related-model columns.
const (
	backwardKeyAlias = "_backward_relation_key"
	forwardKeyAlias  = "_forward_relation_key"
)

// FetchForList prefetches the requested relation paths into an already
// fetched instance list. Each path is a dotted chain ("author",
// "participants.team"); the first segment must be a declared relation
// field, the rest is forwarded to the related objects. Each relation costs
// one query per nesting level, independent of the list size.
func (e *Executor) FetchForList(ctx context.Context, instances []*Instance, relations ...string) ([]*Instance, error) {
	e.prefetchMap = map[string]map[string]struct{}{}
	for _, path := range relations {
		segments := strings.SplitN(path, ".", 2)
		first := segments[0]
		if _, ok := e.meta.Relation(first); !ok {
			return nil, NewError(KindOperational, "relation %s for %s not found", first, e.meta.Table)
		}
		forwarded, ok := e.prefetchMap[first]
		if !ok {
			forwarded = map[string]struct{}{}
			e.prefetchMap[first] = forwarded
		}
		if len(segments) == 2 && segments[1] != "" {
			forwarded[segments[1]] = struct{}{}
		}
	}
	if err := e.executePrefetches(ctx, instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (e *Executor) executePrefetches(ctx context.Context, instances []*Instance) error {
	if len(instances) == 0 || (len(e.prefetchMap) == 0 && len(e.prefetchQueries) == 0) {
		return nil
	}
	e.makePrefetchQueries()

	fields := make([]string, 0, len(e.prefetchQueries))
	for field := range e.prefetchQueries {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		rel, ok := e.meta.Relation(field)
		if !ok {
			return NewError(KindOperational, "relation %s for %s not found", field, e.meta.Table)
		}
		var err error
		switch rel.Kind {
		case DirectRelation:
			err = e.prefetchDirect(ctx, instances, rel, e.prefetchQueries[field])
		case ReverseRelation:
			err = e.prefetchReverse(ctx, instances, rel, e.prefetchQueries[field])
		case ManyToManyRelation:
			err = e.prefetchManyToMany(ctx, instances, rel, e.prefetchQueries[field])
		default:
			err = NewError(KindOperational, "relation %s for %s has unknown kind", field, e.meta.Table)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// makePrefetchQueries materializes one related query per requested relation,
// reusing caller-provided queries and forwarding nested prefetch paths.
func (e *Executor) makePrefetchQueries() {
	if e.prefetchQueries == nil {
		e.prefetchQueries = map[string]*Query{}
	}
	for field, forwarded := range e.prefetchMap {
		q, ok := e.prefetchQueries[field]
		if !ok {
			rel, _ := e.meta.Relation(field)
			q = NewQuery(rel.Target)
		}
		if len(forwarded) > 0 {
			paths := make([]string, 0, len(forwarded))
			for p := range forwarded {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			q.Prefetch(paths...)
		}
		e.prefetchQueries[field] = q
	}
}

// prefetchDirect resolves relations whose foreign key lives on this table:
// one id IN (...) fetch over the distinct non-null key values, then a map
// assignment per instance. Instances with a null key are left unset.
func (e *Executor) prefetchDirect(ctx context.Context, instances []*Instance, rel *Relation, q *Query) error {
	var keys []interface{}
	seen := map[int64]bool{}
	for _, inst := range instances {
		if key, ok := asInt64(inst.Get(rel.SourceField)); ok && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	related, err := NewExecutor(rel.Target, e.db).Select(ctx, q.Clone().Filter("id", OpIn, keys), nil)
	if err != nil {
		return err
	}

	byID := make(map[int64]*Instance, len(related))
	for _, obj := range related {
		if id, ok := obj.ID(); ok {
			byID[id] = obj
		}
	}
	for _, inst := range instances {
		if key, ok := asInt64(inst.Get(rel.SourceField)); ok {
			if obj, found := byID[key]; found {
				inst.SetRelated(rel.Name, obj)
			} else {
				inst.SetRelated(rel.Name, nil)
			}
		}
	}
	return nil
}

// prefetchReverse resolves relations whose foreign key lives on the related
// table: one fetch filtered by <relation-field> IN (parent ids), grouped by
// the key value. Parents without children get an empty list. Unpersisted
// instances have no primary key and are excluded from the fetch set.
func (e *Executor) prefetchReverse(ctx context.Context, instances []*Instance, rel *Relation, q *Query) error {
	ids := instanceIDs(instances)
	if len(ids) == 0 {
		return nil
	}

	related, err := NewExecutor(rel.Target, e.db).Select(ctx, q.Clone().Filter(rel.RelationField, OpIn, ids), nil)
	if err != nil {
		return err
	}

	groups := map[int64][]*Instance{}
	for _, obj := range related {
		if key, ok := asInt64(obj.Get(rel.RelationField)); ok {
			groups[key] = append(groups[key], obj)
		}
	}
	for _, inst := range instances {
		if id, ok := inst.ID(); ok {
			group := groups[id]
			if group == nil {
				group = []*Instance{}
			}
			inst.SetRelated(rel.Name, group)
		}
	}
	return nil
}

// prefetchManyToMany resolves relations held in a through table: one query
// joining the related table to a derived subquery over the through table,
// with the related query's own filters applied on top. Nested prefetch paths
// are forwarded to a fresh executor over the distinct related objects, so
// each nesting level costs one more query regardless of list size.
func (e *Executor) prefetchManyToMany(ctx context.Context, instances []*Instance, rel *Relation, q *Query) error {
	ids := instanceIDs(instances)
	if len(ids) == 0 {
		return nil
	}

	d := e.db.Dialect()
	b := &Binder{Dialect: d}

	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, b.Add(id))
	}
	subquery := fmt.Sprintf("SELECT %s AS %s, %s AS %s FROM %s WHERE %s IN (%s)",
		d.Quote(rel.BackwardKey), d.Quote(backwardKeyAlias),
		d.Quote(rel.ForwardKey), d.Quote(forwardKeyAlias),
		d.Quote(rel.Through),
		d.Quote(rel.BackwardKey), strings.Join(placeholders, ", "))

	relatedTable := rel.Target.Table
	columns := make([]string, 0, len(rel.Target.fieldOrder))
	for _, c := range rel.Target.ColumnNames() {
		columns = append(columns, d.Quote(relatedTable)+"."+d.Quote(c))
	}
	joinAlias := d.Quote("through_" + rel.Name)

	var query strings.Builder
	fmt.Fprintf(&query, "SELECT %s.%s, %s FROM %s JOIN (%s) %s ON %s.%s = %s.%s",
		joinAlias, d.Quote(backwardKeyAlias),
		strings.Join(columns, ", "),
		d.Quote(relatedTable),
		subquery, joinAlias,
		joinAlias, d.Quote(forwardKeyAlias),
		d.Quote(relatedTable), d.Quote("id"))

	where, err := q.whereSQL(d, b, relatedTable)
	if err != nil {
		return err
	}
	if where != "" {
		query.WriteString(" WHERE ")
		query.WriteString(where)
	}

	rows, err := e.db.ExecuteQuery(ctx, query.String(), b.Args()...)
	if err != nil {
		return err
	}

	type pair struct{ backward, related int64 }
	var pairs []pair
	byID := map[int64]*Instance{}
	var distinct []*Instance
	for _, row := range rows {
		backward, ok := asInt64(row[backwardKeyAlias])
		if !ok {
			continue
		}
		obj := rel.Target.FromRow(row)
		id, ok := obj.ID()
		if !ok {
			continue
		}
		pairs = append(pairs, pair{backward: backward, related: id})
		if _, dup := byID[id]; !dup {
			byID[id] = obj
			distinct = append(distinct, obj)
		}
	}

	if _, err := NewExecutor(rel.Target, e.db).FetchForList(ctx, distinct, q.PrefetchPaths()...); err != nil {
		return err
	}

	groups := map[int64][]*Instance{}
	for _, p := range pairs {
		groups[p.backward] = append(groups[p.backward], byID[p.related])
	}
	for _, inst := range instances {
		if id, ok := inst.ID(); ok {
			group := groups[id]
			if group == nil {
				group = []*Instance{}
			}
			inst.SetRelated(rel.Name, group)
		}
	}
	return nil
}

// instanceIDs collects the distinct primary keys of persisted instances, in
// list order.
func instanceIDs(instances []*Instance) []interface{} {
	var ids []interface{}
	seen := map[int64]bool{}
	for _, inst := range instances {
		if id, ok := inst.ID(); ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
