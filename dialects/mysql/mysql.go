// Package mysql is the MySQL backend specialization.
package mysql

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/dataplane/quarry"
	"github.com/dataplane/quarry/dialects/common"
)

func init() {
	quarry.RegisterDialect("mysql", &Dialect{})
}

// Dialect implements quarry.Dialect for MySQL.
type Dialect struct {
	common.Dialect
}

// Name returns the registered dialect name.
func (Dialect) Name() string { return "mysql" }

// DriverName returns the database/sql driver to open.
func (Dialect) DriverName() string { return "mysql" }

// Quote escapes an identifier with backticks.
func (Dialect) Quote(identifier string) string { return "`" + identifier + "`" }

// ExplainPrefix asks for the structured plan form.
func (Dialect) ExplainPrefix() string { return "EXPLAIN FORMAT=JSON" }

// InsertSQL renders the cached insert statement. The generated key comes
// back through LastInsertId.
func (d Dialect) InsertSQL(table string, columns []string) string {
	cols, vars := common.InsertColumnList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), cols, vars)
}

// DSN renders the driver connection string through the driver's own
// formatter. Extras become DSN params.
func (Dialect) DSN(cfg quarry.Config, withDB bool) (string, error) {
	driverCfg := mysql.NewConfig()
	driverCfg.Net = "tcp"
	driverCfg.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	driverCfg.User = cfg.User
	driverCfg.Passwd = cfg.Password
	driverCfg.ParseTime = true
	if withDB {
		driverCfg.DBName = cfg.Database
	}
	if len(cfg.Extras) > 0 {
		driverCfg.Params = map[string]string{}
		for k, v := range cfg.Extras {
			driverCfg.Params[k] = v
		}
	}
	return driverCfg.FormatDSN(), nil
}

// CreateDatabaseSQL renders the administrative create statement.
func (d Dialect) CreateDatabaseSQL(name string) string {
	return "CREATE DATABASE " + d.Quote(name)
}

// DropDatabaseSQL renders the administrative drop statement.
func (d Dialect) DropDatabaseSQL(name string) string {
	return "DROP DATABASE " + d.Quote(name)
}

// MySQL server error numbers translated to integrity errors.
var integrityErrNos = map[uint16]bool{
	1048: true, // column cannot be null
	1062: true, // duplicate entry
	1216: true, // foreign key constraint fails (child)
	1217: true, // foreign key constraint fails (parent)
	1451: true, // cannot delete or update a parent row
	1452: true, // cannot add or update a child row
}

// Missing-database error numbers tolerated by the idempotent drop.
var missingDatabaseErrNos = map[uint16]bool{
	1008: true, // can't drop database; doesn't exist
	1049: true, // unknown database
}

// Translate maps driver failures onto the taxonomy: constraint violations
// become integrity errors, everything else operational.
func (d Dialect) Translate(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if integrityErrNos[mysqlErr.Number] {
			return quarry.WrapError(quarry.KindIntegrity, err, "constraint violation")
		}
		return quarry.WrapError(quarry.KindOperational, err, "statement failed")
	}
	return d.Dialect.Translate(err)
}

// IsConnectionError adds the driver's invalid-connection sentinel to the
// generic classification.
func (d Dialect) IsConnectionError(err error) bool {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	return d.Dialect.IsConnectionError(err)
}

// IsMissingDatabase identifies the unknown-database error class.
func (Dialect) IsMissingDatabase(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && missingDatabaseErrNos[mysqlErr.Number]
}

// FilterOverride replaces the LIKE-family predicates: MySQL pattern matching
// over non-text columns needs an explicit CAST to CHAR, and case-insensitive
// matching goes through UPPER on both sides.
func (d Dialect) FilterOverride(op quarry.Op) (quarry.PredicateFunc, bool) {
	switch op {
	case quarry.OpContains:
		return castLike("%%%v%%", false), true
	case quarry.OpStartsWith:
		return castLike("%v%%", false), true
	case quarry.OpEndsWith:
		return castLike("%%%v", false), true
	case quarry.OpIContains:
		return castLike("%%%v%%", true), true
	case quarry.OpIStartsWith:
		return castLike("%v%%", true), true
	case quarry.OpIEndsWith:
		return castLike("%%%v", true), true
	}
	return nil, false
}

func castLike(pattern string, insensitive bool) quarry.PredicateFunc {
	return func(b *quarry.Binder, column string, value interface{}) (string, error) {
		placeholder := b.Add(fmt.Sprintf(pattern, value))
		if insensitive {
			return fmt.Sprintf("UPPER(CAST(%s AS CHAR)) LIKE UPPER(%s)", column, placeholder), nil
		}
		return fmt.Sprintf("CAST(%s AS CHAR) LIKE %s", column, placeholder), nil
	}
}
