package quarry

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/dataplane/quarry/logger"
)

// Row is one result row: physical column name to dialect-decoded value.
type Row map[string]interface{}

// DBClient is the execution surface the executor depends on. Both a base
// Client and a TxScope implement it.
type DBClient interface {
	ConnectionName() string
	Dialect() Dialect
	InsertCache() *InsertCache
	// ExecuteQuery runs a SELECT-shaped statement and returns its rows.
	ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]Row, error)
	// Execute runs a statement that returns nothing.
	Execute(ctx context.Context, query string, args ...interface{}) error
	// ExecuteInsert runs an INSERT and returns the generated key.
	ExecuteInsert(ctx context.Context, query string, args ...interface{}) (int64, error)
}

// Client owns exactly one physical database connection, its lifecycle and
// the retry/translation policies around statement execution.
type Client struct {
	name    string
	dialect Dialect
	cfg     Config
	log     logger.Interface

	// mu is the reconnection lock. It is held for the full close+recreate
	// span and statement execution acquires the connection through it, so
	// no statement can run against a connection mid-replacement.
	mu   sync.Mutex
	db   *sql.DB
	conn *sql.Conn

	cache  *InsertCache
	txs    *TxState
	runner statementRunner
}

// NewClient builds a client for a named connection. No connection is opened
// until Connect (or the first administrative flow) is called.
func NewClient(name string, dialect Dialect, cfg Config, log logger.Interface) *Client {
	if log == nil {
		log = logger.Default
	}
	c := &Client{
		name:    name,
		dialect: dialect,
		cfg:     cfg,
		log:     log,
		cache:   NewInsertCache(),
		txs:     NewTxState(),
	}
	c.runner = &translateRunner{
		next:    &retryRunner{next: &connRunner{c: c}, rc: c, log: log},
		dialect: dialect,
	}
	return c
}

// ConnectionName returns the name this client was registered under.
func (c *Client) ConnectionName() string { return c.name }

// Dialect returns the backend specialization.
func (c *Client) Dialect() Dialect { return c.dialect }

// InsertCache returns the insert-plan cache scoped to this connection.
func (c *Client) InsertCache() *InsertCache { return c.cache }

// TxState returns the per-connection-name transaction context.
func (c *Client) TxState() *TxState { return c.txs }

// Config returns the connection parameters.
func (c *Client) Config() Config { return c.cfg }

// Connect establishes the physical connection to the configured database.
func (c *Client) Connect(ctx context.Context) error {
	return c.CreateConnection(ctx, true)
}

// CreateConnection establishes (or re-establishes) the physical connection.
// withDB false connects without selecting the target database, for
// administrative flows that run before it exists.
func (c *Client) CreateConnection(ctx context.Context, withDB bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createConnectionLocked(ctx, withDB)
}

func (c *Client) createConnectionLocked(ctx context.Context, withDB bool) error {
	c.closeLocked()

	dsn, err := c.dialect.DSN(c.cfg, withDB)
	if err != nil {
		return WrapError(KindConnection, err, "can't build %s connection parameters: %s", c.dialect.Name(), c.cfg.SafeString())
	}
	db, err := sql.Open(c.dialect.DriverName(), dsn)
	if err != nil {
		return WrapError(KindConnection, err, "can't connect to %s server: %s", c.dialect.Name(), c.cfg.SafeString())
	}
	// one physical connection per client
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return WrapError(KindConnection, err, "can't connect to %s server: %s", c.dialect.Name(), c.cfg.SafeString())
	}
	c.db = db
	c.conn = conn
	c.log.Info(ctx, "created connection", c.cfg.SafeString())
	return nil
}

// Close releases the physical connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
}

// Reconnect closes the stale connection and attempts exactly one fresh
// connect, under the reconnection lock.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createConnectionLocked(ctx, true)
}

// IsConnectionError classifies failures that warrant the single reconnect.
func (c *Client) IsConnectionError(err error) bool {
	return c.dialect.IsConnectionError(err)
}

// acquire returns the live connection with the reconnection lock held; the
// release callback must be called on every exit path.
func (c *Client) acquire() (*sql.Conn, func(), error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, nil, NewError(KindConnection, "not connected to %s server: %s", c.dialect.Name(), c.cfg.SafeString())
	}
	return c.conn, c.mu.Unlock, nil
}

// lockConn holds the reconnection lock for the span of one statement issued
// by a transaction scope.
func (c *Client) lockConn() func() {
	c.mu.Lock()
	return c.mu.Unlock
}

// ExecuteQuery runs a SELECT-shaped statement and returns the decoded rows.
func (c *Client) ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	begin := time.Now()
	rows, err := c.runner.Query(ctx, query, args)
	c.log.Trace(ctx, begin, func() (string, int64) { return query, int64(len(rows)) }, err)
	return rows, err
}

// Execute runs a statement that returns nothing.
func (c *Client) Execute(ctx context.Context, query string, args ...interface{}) error {
	begin := time.Now()
	err := c.runner.Exec(ctx, query, args)
	c.log.Trace(ctx, begin, func() (string, int64) { return query, -1 }, err)
	return err
}

// ExecuteInsert runs an INSERT and returns the generated key.
func (c *Client) ExecuteInsert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	begin := time.Now()
	id, err := c.runner.Insert(ctx, query, args)
	c.log.Trace(ctx, begin, func() (string, int64) { return query, 1 }, err)
	return id, err
}

// DBCreate creates the configured database through a connection that does
// not select it. File-backed databases are created by connecting to them.
func (c *Client) DBCreate(ctx context.Context) error {
	stmt := c.dialect.CreateDatabaseSQL(c.cfg.Database)
	if stmt == "" {
		if err := c.CreateConnection(ctx, true); err != nil {
			return err
		}
		return c.Close()
	}

	if err := c.CreateConnection(ctx, false); err != nil {
		return err
	}
	defer c.Close()
	return c.Execute(ctx, stmt)
}

// DBDelete drops the configured database. A missing database is tolerated
// silently so the drop is idempotent.
func (c *Client) DBDelete(ctx context.Context) error {
	stmt := c.dialect.DropDatabaseSQL(c.cfg.Database)
	if stmt == "" {
		if err := os.Remove(c.cfg.Database); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return WrapError(KindOperational, err, "can't remove database file %s", c.cfg.Database)
		}
		return nil
	}

	if err := c.CreateConnection(ctx, false); err != nil {
		return err
	}
	defer c.Close()
	if err := c.Execute(ctx, stmt); err != nil && !c.dialect.IsMissingDatabase(err) {
		return err
	}
	return nil
}
