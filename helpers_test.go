package quarry

import (
	"context"
	"fmt"
)

// fakeDialect is a minimal backend specialization for exercising rendering
// and translation without a driver.
type fakeDialect struct {
	numbered          bool
	supportsReturning bool
	filterOverrides   map[Op]PredicateFunc
	coerceOverrides   map[FieldKind]CoerceFunc
	connErr           func(error) bool
}

func (fakeDialect) Name() string                   { return "fake" }
func (fakeDialect) DriverName() string             { return "fake" }
func (fakeDialect) Quote(identifier string) string { return `"` + identifier + `"` }

func (d fakeDialect) BinVar(i int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (fakeDialect) ExplainPrefix() string { return "EXPLAIN" }

func (d fakeDialect) InsertSQL(table string, columns []string) string {
	cols, vars := "", ""
	for i, c := range columns {
		if i > 0 {
			cols += ", "
			vars += ", "
		}
		cols += d.Quote(c)
		vars += d.BinVar(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), cols, vars)
}

func (d fakeDialect) SupportsReturning() bool { return d.supportsReturning }

func (d fakeDialect) CoerceOverride(kind FieldKind) (CoerceFunc, bool) {
	fn, ok := d.coerceOverrides[kind]
	return fn, ok
}

func (d fakeDialect) FilterOverride(op Op) (PredicateFunc, bool) {
	fn, ok := d.filterOverrides[op]
	return fn, ok
}

func (fakeDialect) DSN(cfg Config, withDB bool) (string, error) { return "fake-dsn", nil }
func (fakeDialect) CreateDatabaseSQL(name string) string        { return "CREATE DATABASE " + name }
func (fakeDialect) DropDatabaseSQL(name string) string          { return "DROP DATABASE " + name }

func (d fakeDialect) Translate(err error) error {
	if err == nil {
		return nil
	}
	if taxonomy, ok := err.(*Error); ok {
		return taxonomy
	}
	if d.connErr != nil && d.connErr(err) {
		return WrapError(KindConnection, err, "connection failure")
	}
	return WrapError(KindOperational, err, "statement failed")
}

func (d fakeDialect) IsConnectionError(err error) bool {
	return d.connErr != nil && d.connErr(err)
}

func (fakeDialect) IsMissingDatabase(err error) bool { return false }

type recordedStatement struct {
	query string
	args  []interface{}
}

// fakeDB implements DBClient for executor and prefetch tests, recording
// every statement and answering queries from a response queue or handler.
type fakeDB struct {
	name    string
	dialect Dialect
	cache   *InsertCache

	statements []recordedStatement
	// onQuery, when set, answers ExecuteQuery; otherwise responses are
	// popped from queued.
	onQuery  func(query string, args []interface{}) ([]Row, error)
	queued   [][]Row
	insertID int64
	execErr  error
}

func newFakeDB() *fakeDB {
	return &fakeDB{name: "default", dialect: fakeDialect{}, cache: NewInsertCache(), insertID: 1}
}

func (f *fakeDB) ConnectionName() string    { return f.name }
func (f *fakeDB) Dialect() Dialect          { return f.dialect }
func (f *fakeDB) InsertCache() *InsertCache { return f.cache }

func (f *fakeDB) ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	f.statements = append(f.statements, recordedStatement{query: query, args: args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.onQuery != nil {
		return f.onQuery(query, args)
	}
	if len(f.queued) == 0 {
		return nil, nil
	}
	rows := f.queued[0]
	f.queued = f.queued[1:]
	return rows, nil
}

func (f *fakeDB) Execute(ctx context.Context, query string, args ...interface{}) error {
	f.statements = append(f.statements, recordedStatement{query: query, args: args})
	return f.execErr
}

func (f *fakeDB) ExecuteInsert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	f.statements = append(f.statements, recordedStatement{query: query, args: args})
	if f.execErr != nil {
		return 0, f.execErr
	}
	id := f.insertID
	f.insertID++
	return id, nil
}

func (f *fakeDB) queryCount() int { return len(f.statements) }

// Test model graph: users -> teams (direct), teams -> users (reverse),
// events <-> teams (many-to-many through event_teams).

func teamMetaForTest(users *Meta) *Meta {
	relations := []*Relation{}
	if users != nil {
		relations = append(relations, &Relation{
			Name:          "members",
			Kind:          ReverseRelation,
			Target:        users,
			RelationField: "team_id",
		})
	}
	return NewMeta("teams",
		[]*Field{
			{Name: "id", Kind: IntField, Generated: true},
			{Name: "name", Kind: TextField},
		},
		relations,
	)
}

func userMetaForTest() (users *Meta, teams *Meta) {
	userFields := []*Field{
		{Name: "id", Kind: IntField, Generated: true},
		{Name: "name", Kind: TextField},
		{Name: "team_id", Kind: IntField, Nullable: true},
	}
	users = NewMeta("users", userFields, nil)
	teams = teamMetaForTest(users)
	users.relations["team"] = &Relation{
		Name:        "team",
		Kind:        DirectRelation,
		Target:      teams,
		SourceField: "team_id",
	}
	return users, teams
}

func eventMetaForTest(teams *Meta) *Meta {
	return NewMeta("events",
		[]*Field{
			{Name: "id", Kind: IntField, Generated: true},
			{Name: "name", Kind: TextField},
		},
		[]*Relation{{
			Name:        "teams",
			Kind:        ManyToManyRelation,
			Target:      teams,
			Through:     "event_teams",
			BackwardKey: "event_id",
			ForwardKey:  "team_id",
		}},
	)
}
