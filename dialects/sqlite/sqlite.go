// Package sqlite is the SQLite backend specialization.
package sqlite

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/mattn/go-sqlite3"

	"github.com/dataplane/quarry"
	"github.com/dataplane/quarry/dialects/common"
)

func init() {
	quarry.RegisterDialect("sqlite", &Dialect{})
}

// Dialect implements quarry.Dialect for SQLite. The database is a file;
// administrative create and drop happen at the filesystem level, which the
// client handles when the administrative statements render empty.
type Dialect struct {
	common.Dialect
}

// Name returns the registered dialect name.
func (Dialect) Name() string { return "sqlite" }

// DriverName returns the database/sql driver to open.
func (Dialect) DriverName() string { return "sqlite3" }

// ExplainPrefix asks for the query-plan table form.
func (Dialect) ExplainPrefix() string { return "EXPLAIN QUERY PLAN" }

// InsertSQL renders the cached insert statement. The generated key comes
// back through LastInsertId.
func (d Dialect) InsertSQL(table string, columns []string) string {
	cols, vars := common.InsertColumnList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), cols, vars)
}

// DSN points at the database file; withDB false yields a throwaway
// in-memory handle for flows that must connect before the file exists.
func (Dialect) DSN(cfg quarry.Config, withDB bool) (string, error) {
	if !withDB {
		return ":memory:", nil
	}
	if len(cfg.Extras) == 0 {
		return cfg.Database, nil
	}
	params := url.Values{}
	for k, v := range cfg.Extras {
		params.Set(k, v)
	}
	return "file:" + cfg.Database + "?" + params.Encode(), nil
}

// CreateDatabaseSQL is empty: the file is created by connecting to it.
func (Dialect) CreateDatabaseSQL(name string) string { return "" }

// DropDatabaseSQL is empty: the file is dropped by removing it.
func (Dialect) DropDatabaseSQL(name string) string { return "" }

// Translate maps driver failures onto the taxonomy: constraint violations
// become integrity errors, everything else operational.
func (d Dialect) Translate(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return quarry.WrapError(quarry.KindIntegrity, err, "constraint violation")
		}
		return quarry.WrapError(quarry.KindOperational, err, "statement failed")
	}
	return d.Dialect.Translate(err)
}

// IsConnectionError adds the unopenable-file classes to the generic
// classification.
func (d Dialect) IsConnectionError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrCantOpen || sqliteErr.Code == sqlite3.ErrNotADB
	}
	return d.Dialect.IsConnectionError(err)
}

// CoerceOverride serializes values SQLite has no native type for: booleans
// as integers, decimals as text quantized to the declared scale, timestamps
// as canonical text with auto-now stamping resolved first.
func (Dialect) CoerceOverride(kind quarry.FieldKind) (quarry.CoerceFunc, bool) {
	switch kind {
	case quarry.BoolField:
		return quarry.BoolToInt, true
	case quarry.DecimalField:
		return quarry.DecimalToText, true
	case quarry.DatetimeField:
		return quarry.DatetimeToText, true
	}
	return nil, false
}
