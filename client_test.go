package quarry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dataplane/quarry/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileDialect stands in for backends whose databases are plain files.
type fileDialect struct{ fakeDialect }

func (fileDialect) CreateDatabaseSQL(name string) string { return "" }
func (fileDialect) DropDatabaseSQL(name string) string   { return "" }

func TestClientStatementsFailWhenNotConnected(t *testing.T) {
	c := NewClient("default", fakeDialect{}, Config{Host: "db-1"}, logger.Discard)

	_, err := c.ExecuteQuery(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	err = c.Execute(context.Background(), "DELETE FROM t")
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	_, err = c.ExecuteInsert(context.Background(), "INSERT INTO t VALUES (1)")
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestClientAccessors(t *testing.T) {
	cfg := Config{Host: "db-1", Port: 5432, Database: "orders"}
	c := NewClient("primary", fakeDialect{}, cfg, nil)

	assert.Equal(t, "primary", c.ConnectionName())
	assert.Equal(t, cfg, c.Config())
	assert.NotNil(t, c.InsertCache())
	assert.NotNil(t, c.TxState())
	assert.Equal(t, "fake", c.Dialect().Name())
}

func TestDBDeleteRemovesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	c := NewClient("default", fileDialect{}, Config{Database: path}, logger.Discard)
	require.NoError(t, c.DBDelete(context.Background()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// dropping an already-absent database is silent
	require.NoError(t, c.DBDelete(context.Background()))
}
