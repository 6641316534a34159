package mysql

import (
	"errors"
	"io"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplane/quarry"
)

func TestRegistered(t *testing.T) {
	d, ok := quarry.GetDialect("mysql")
	require.True(t, ok)
	assert.Equal(t, "mysql", d.Name())
	assert.Equal(t, "mysql", d.DriverName())
}

func TestQuoteAndPlaceholders(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "`users`", d.Quote("users"))
	assert.Equal(t, "?", d.BinVar(1))
	assert.Equal(t, "?", d.BinVar(5))
	assert.False(t, d.SupportsReturning())
}

func TestInsertSQL(t *testing.T) {
	d := Dialect{}
	assert.Equal(t,
		"INSERT INTO `users` (`name`, `team_id`) VALUES (?, ?)",
		d.InsertSQL("users", []string{"name", "team_id"}))
}

func TestExplainPrefix(t *testing.T) {
	assert.Equal(t, "EXPLAIN FORMAT=JSON", Dialect{}.ExplainPrefix())
}

func TestDSN(t *testing.T) {
	d := Dialect{}
	cfg := quarry.Config{
		Host: "db-1", Port: 3306, User: "app", Password: "secret", Database: "orders",
		Extras: map[string]string{"charset": "utf8mb4"},
	}

	dsn, err := d.DSN(cfg, true)
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:secret@tcp(db-1:3306)/orders")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	dsn, err = d.DSN(cfg, false)
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(db-1:3306)/?")
	assert.NotContains(t, dsn, "/orders")
}

func TestAdministrativeStatements(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "CREATE DATABASE `orders`", d.CreateDatabaseSQL("orders"))
	assert.Equal(t, "DROP DATABASE `orders`", d.DropDatabaseSQL("orders"))
}

func TestTranslate(t *testing.T) {
	d := Dialect{}

	for _, number := range []uint16{1048, 1062, 1216, 1217, 1451, 1452} {
		err := d.Translate(&mysql.MySQLError{Number: number, Message: "constraint"})
		assert.True(t, quarry.IsIntegrityError(err), "error number %d", number)
	}

	err := d.Translate(&mysql.MySQLError{Number: 1064, Message: "syntax"})
	assert.True(t, quarry.IsOperationalError(err))

	err = d.Translate(io.EOF)
	assert.True(t, quarry.IsConnectionError(err))

	assert.NoError(t, d.Translate(nil))

	// taxonomy errors pass through untouched
	already := quarry.NewError(quarry.KindTransaction, "finalised")
	assert.Same(t, already, d.Translate(already).(*quarry.Error))
}

func TestIsConnectionError(t *testing.T) {
	d := Dialect{}
	assert.True(t, d.IsConnectionError(mysql.ErrInvalidConn))
	assert.True(t, d.IsConnectionError(io.ErrUnexpectedEOF))
	assert.False(t, d.IsConnectionError(errors.New("syntax error")))
}

func TestIsMissingDatabase(t *testing.T) {
	d := Dialect{}
	assert.True(t, d.IsMissingDatabase(&mysql.MySQLError{Number: 1049, Message: "unknown database"}))
	assert.True(t, d.IsMissingDatabase(&mysql.MySQLError{Number: 1008, Message: "can't drop"}))
	assert.False(t, d.IsMissingDatabase(&mysql.MySQLError{Number: 1062, Message: "duplicate"}))
	assert.False(t, d.IsMissingDatabase(errors.New("other")))
}

func TestFilterOverrideCastsToChar(t *testing.T) {
	d := Dialect{}

	fn, ok := d.FilterOverride(quarry.OpContains)
	require.True(t, ok)
	b := &quarry.Binder{Dialect: d}
	frag, err := fn(b, "`name`", "ada")
	require.NoError(t, err)
	assert.Equal(t, "CAST(`name` AS CHAR) LIKE ?", frag)
	assert.Equal(t, []interface{}{"%ada%"}, b.Args())

	fn, ok = d.FilterOverride(quarry.OpIStartsWith)
	require.True(t, ok)
	b = &quarry.Binder{Dialect: d}
	frag, err = fn(b, "`name`", "ada")
	require.NoError(t, err)
	assert.Equal(t, "UPPER(CAST(`name` AS CHAR)) LIKE UPPER(?)", frag)
	assert.Equal(t, []interface{}{"ada%"}, b.Args())

	_, ok = d.FilterOverride(quarry.OpEq)
	assert.False(t, ok, "comparisons keep the default rendering")
}
