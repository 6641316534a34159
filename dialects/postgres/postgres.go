// Package postgres is the PostgreSQL backend specialization.
package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/dataplane/quarry"
	"github.com/dataplane/quarry/dialects/common"
)

func init() {
	quarry.RegisterDialect("postgres", &Dialect{})
}

// Dialect implements quarry.Dialect for PostgreSQL.
type Dialect struct {
	common.Dialect
}

// Name returns the registered dialect name.
func (Dialect) Name() string { return "postgres" }

// DriverName returns the database/sql driver to open.
func (Dialect) DriverName() string { return "postgres" }

// BinVar renders numbered placeholders.
func (Dialect) BinVar(i int) string { return fmt.Sprintf("$%d", i) }

// SupportsReturning reports that inserts yield the generated key as a row.
func (Dialect) SupportsReturning() bool { return true }

// InsertSQL renders the cached insert statement with a RETURNING clause,
// since the driver does not support LastInsertId.
func (d Dialect) InsertSQL(table string, columns []string) string {
	cols, vars := common.InsertColumnList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		d.Quote(table), cols, vars, d.Quote("id"))
}

// DSN renders the keyword/value connection string. withDB false targets the
// maintenance database for administrative flows.
func (Dialect) DSN(cfg quarry.Config, withDB bool) (string, error) {
	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		fmt.Sprintf("user=%s", cfg.User),
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	if withDB {
		parts = append(parts, fmt.Sprintf("dbname=%s", cfg.Database))
	} else {
		parts = append(parts, "dbname=postgres")
	}
	if _, ok := cfg.Extras["sslmode"]; !ok {
		parts = append(parts, "sslmode=disable")
	}
	for k, v := range cfg.Extras {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, " "), nil
}

// CreateDatabaseSQL renders the administrative create statement.
func (d Dialect) CreateDatabaseSQL(name string) string {
	return "CREATE DATABASE " + d.Quote(name)
}

// DropDatabaseSQL renders the administrative drop statement.
func (d Dialect) DropDatabaseSQL(name string) string {
	return "DROP DATABASE " + d.Quote(name)
}

// Translate maps driver failures onto the taxonomy by SQLSTATE class:
// class 23 (integrity violations) becomes an integrity error, class 08
// (connection exceptions) a connection error, the rest operational.
func (d Dialect) Translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23":
			return quarry.WrapError(quarry.KindIntegrity, err, "constraint violation")
		case "08":
			return quarry.WrapError(quarry.KindConnection, err, "connection failure")
		}
		return quarry.WrapError(quarry.KindOperational, err, "statement failed")
	}
	return d.Dialect.Translate(err)
}

// IsConnectionError adds SQLSTATE class 08 to the generic classification.
func (d Dialect) IsConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}
	return d.Dialect.IsConnectionError(err)
}

// IsMissingDatabase identifies invalid_catalog_name, the code returned when
// dropping a database that does not exist.
func (Dialect) IsMissingDatabase(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "3D000"
}

// FilterOverride routes the case-insensitive LIKE family through ILIKE.
func (d Dialect) FilterOverride(op quarry.Op) (quarry.PredicateFunc, bool) {
	switch op {
	case quarry.OpIContains:
		return ilike("%%%v%%"), true
	case quarry.OpIStartsWith:
		return ilike("%v%%"), true
	case quarry.OpIEndsWith:
		return ilike("%%%v"), true
	}
	return nil, false
}

func ilike(pattern string) quarry.PredicateFunc {
	return func(b *quarry.Binder, column string, value interface{}) (string, error) {
		return fmt.Sprintf("%s ILIKE %s", column, b.Add(fmt.Sprintf(pattern, value))), nil
	}
}
