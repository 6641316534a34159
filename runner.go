package quarry

import (
	"context"
	"database/sql"

	"github.com/dataplane/quarry/logger"
)

// execer is the subset of database/sql handles statements run against. Both
// *sql.Conn and *sql.Tx satisfy it.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// txHandle abstracts *sql.Tx so transaction scopes can be exercised without
// a live database.
type txHandle interface {
	execer
	Commit() error
	Rollback() error
}

// statementRunner is the execution-primitive layer. The client composes it
// explicitly: a raw runner bound to the physical connection, wrapped by the
// retry policy, wrapped by the translation policy. Translation sits outside
// retry so it sees the retried outcome.
type statementRunner interface {
	Query(ctx context.Context, query string, args []interface{}) ([]Row, error)
	Exec(ctx context.Context, query string, args []interface{}) error
	Insert(ctx context.Context, query string, args []interface{}) (int64, error)
	Begin(ctx context.Context) (txHandle, error)
}

// reconnector is what the retry policy needs from the owning client.
type reconnector interface {
	IsConnectionError(err error) bool
	Reconnect(ctx context.Context) error
}

// retryRunner retries a failed primitive exactly once after a reconnect
// cycle when the failure classifies as connection-level. A reconnect failure
// is logged and the retry proceeds anyway; its failure then propagates,
// bounding the policy to a single attempt against an unreachable server.
type retryRunner struct {
	next statementRunner
	rc   reconnector
	log  logger.Interface
}

func (r *retryRunner) Query(ctx context.Context, query string, args []interface{}) ([]Row, error) {
	rows, err := r.next.Query(ctx, query, args)
	if err == nil || !r.rc.IsConnectionError(err) {
		return rows, err
	}
	r.reconnect(ctx)
	return r.next.Query(ctx, query, args)
}

func (r *retryRunner) Exec(ctx context.Context, query string, args []interface{}) error {
	err := r.next.Exec(ctx, query, args)
	if err == nil || !r.rc.IsConnectionError(err) {
		return err
	}
	r.reconnect(ctx)
	return r.next.Exec(ctx, query, args)
}

func (r *retryRunner) Insert(ctx context.Context, query string, args []interface{}) (int64, error) {
	id, err := r.next.Insert(ctx, query, args)
	if err == nil || !r.rc.IsConnectionError(err) {
		return id, err
	}
	r.reconnect(ctx)
	return r.next.Insert(ctx, query, args)
}

func (r *retryRunner) Begin(ctx context.Context) (txHandle, error) {
	tx, err := r.next.Begin(ctx)
	if err == nil || !r.rc.IsConnectionError(err) {
		return tx, err
	}
	r.reconnect(ctx)
	return r.next.Begin(ctx)
}

func (r *retryRunner) reconnect(ctx context.Context) {
	r.log.Info(ctx, "attempting reconnect")
	if err := r.rc.Reconnect(ctx); err != nil {
		r.log.Error(ctx, "failed to reconnect", err)
		return
	}
	r.log.Info(ctx, "reconnected")
}

// translateRunner maps driver failures to the taxonomy through the dialect.
type translateRunner struct {
	next    statementRunner
	dialect Dialect
}

func (t *translateRunner) Query(ctx context.Context, query string, args []interface{}) ([]Row, error) {
	rows, err := t.next.Query(ctx, query, args)
	if err != nil {
		return nil, t.dialect.Translate(err)
	}
	return rows, nil
}

func (t *translateRunner) Exec(ctx context.Context, query string, args []interface{}) error {
	if err := t.next.Exec(ctx, query, args); err != nil {
		return t.dialect.Translate(err)
	}
	return nil
}

func (t *translateRunner) Insert(ctx context.Context, query string, args []interface{}) (int64, error) {
	id, err := t.next.Insert(ctx, query, args)
	if err != nil {
		return 0, t.dialect.Translate(err)
	}
	return id, nil
}

func (t *translateRunner) Begin(ctx context.Context) (txHandle, error) {
	tx, err := t.next.Begin(ctx)
	if err != nil {
		return nil, t.dialect.Translate(err)
	}
	return tx, nil
}

// connRunner issues statements on the client's physical connection. Each
// call acquires the connection through the guarded accessor, so a statement
// can never run against a connection mid-replacement.
type connRunner struct {
	c *Client
}

func (r *connRunner) Query(ctx context.Context, query string, args []interface{}) ([]Row, error) {
	conn, release, err := r.c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (r *connRunner) Exec(ctx context.Context, query string, args []interface{}) error {
	conn, release, err := r.c.acquire()
	if err != nil {
		return err
	}
	defer release()

	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

func (r *connRunner) Insert(ctx context.Context, query string, args []interface{}) (int64, error) {
	conn, release, err := r.c.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	return insertOn(ctx, conn, r.c.dialect, query, args)
}

func (r *connRunner) Begin(ctx context.Context) (txHandle, error) {
	conn, release, err := r.c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return conn.BeginTx(ctx, nil)
}

// txRunner issues statements inside a transaction scope, over the same
// physical connection and lock as the owning client.
type txRunner struct {
	scope *TxScope
}

func (r *txRunner) Query(ctx context.Context, query string, args []interface{}) ([]Row, error) {
	release := r.scope.client.lockConn()
	defer release()

	rows, err := r.scope.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (r *txRunner) Exec(ctx context.Context, query string, args []interface{}) error {
	release := r.scope.client.lockConn()
	defer release()

	_, err := r.scope.tx.ExecContext(ctx, query, args...)
	return err
}

func (r *txRunner) Insert(ctx context.Context, query string, args []interface{}) (int64, error) {
	release := r.scope.client.lockConn()
	defer release()
	return insertOn(ctx, r.scope.tx, r.scope.client.dialect, query, args)
}

func (r *txRunner) Begin(ctx context.Context) (txHandle, error) {
	return nil, NewError(KindTransaction, "nested transactions are not supported")
}

// insertOn executes an INSERT and returns the generated key, through a
// RETURNING row on backends that support it and LastInsertId elsewhere.
func insertOn(ctx context.Context, ex execer, d Dialect, query string, args []interface{}) (int64, error) {
	if d.SupportsReturning() {
		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		decoded, err := scanRows(rows)
		if err != nil {
			return 0, err
		}
		if len(decoded) == 0 {
			return 0, NewError(KindOperational, "insert returned no generated key")
		}
		for _, v := range decoded[0] {
			if id, ok := asInt64(v); ok {
				return id, nil
			}
		}
		return 0, NewError(KindOperational, "insert returned a non-integer key")
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// scanRows decodes a result set into ordered row mappings of physical column
// name to scalar value. Byte slices are normalized to strings.
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeValue(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
