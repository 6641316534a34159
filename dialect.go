package quarry

import (
	"fmt"
	"sync"
)

// Dialect is the backend specialization contract: everything a database
// flavor may override about value serialization, predicate synthesis and
// statement syntax. The executor and client stay dialect-agnostic and reach
// every backend difference through this interface.
type Dialect interface {
	// Name is the registered dialect name, DriverName the database/sql
	// driver to open.
	Name() string
	DriverName() string

	// Quote escapes an identifier.
	Quote(identifier string) string
	// BinVar renders the i-th (1-based) bound parameter placeholder.
	BinVar(i int) string

	// ExplainPrefix is the statement prefix used by Executor.Explain.
	ExplainPrefix() string
	// InsertSQL renders the cached insert statement for a table and its
	// insertable physical columns.
	InsertSQL(table string, columns []string) string
	// SupportsReturning reports whether inserts return the generated key
	// as a result row instead of LastInsertId.
	SupportsReturning() bool

	// CoerceOverride returns the backend's storage coercion for a field
	// kind, when it overrides the default serialization.
	CoerceOverride(kind FieldKind) (CoerceFunc, bool)
	// FilterOverride returns the backend's predicate renderer for a
	// filter operator, when it overrides the default rendering.
	FilterOverride(op Op) (PredicateFunc, bool)

	// DSN renders the driver connection string. withDB false omits the
	// target database for administrative flows.
	DSN(cfg Config, withDB bool) (string, error)
	// CreateDatabaseSQL and DropDatabaseSQL render the administrative
	// statements. An empty string marks a file-backed database handled
	// at the filesystem level.
	CreateDatabaseSQL(name string) string
	DropDatabaseSQL(name string) string

	// Translate maps a driver failure to the taxonomy. Taxonomy errors
	// pass through unchanged.
	Translate(err error) error
	// IsConnectionError classifies failures that warrant the single
	// reconnect attempt.
	IsConnectionError(err error) bool
	// IsMissingDatabase identifies the "database does not exist" class
	// tolerated by the idempotent administrative drop.
	IsMissingDatabase(err error) bool
}

var (
	dialectsMu sync.RWMutex
	dialectMap = map[string]Dialect{}
)

// RegisterDialect makes a dialect available by name. Backend packages call
// it from init.
func RegisterDialect(name string, dialect Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialectMap[name] = dialect
}

// GetDialect looks up a registered dialect.
func GetDialect(name string) (Dialect, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialectMap[name]
	return d, ok
}

// MustDialect looks up a registered dialect and panics when absent. Intended
// for program initialization paths.
func MustDialect(name string) Dialect {
	d, ok := GetDialect(name)
	if !ok {
		panic(fmt.Sprintf("quarry: dialect %q is not registered", name))
	}
	return d
}
