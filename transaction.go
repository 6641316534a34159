package quarry

import (
	"context"
	"sync"
	"time"
)

// TxState tracks the currently-active transaction scope per connection name.
// It replaces ambient context-local lookup with an explicit value owned by
// the client and consulted by whoever routes statements.
type TxState struct {
	mu      sync.Mutex
	current map[string]*TxScope
}

// NewTxState builds an empty transaction context.
func NewTxState() *TxState {
	return &TxState{current: map[string]*TxScope{}}
}

// Current returns the active scope for a connection name, or nil.
func (s *TxState) Current(name string) *TxScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[name]
}

// swap installs scope as current for name and returns the previous value so
// nested scopes can unwind correctly.
func (s *TxState) swap(name string, scope *TxScope) *TxScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current[name]
	s.current[name] = scope
	return prev
}

func (s *TxState) restore(name string, prev *TxScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[name] = prev
}

// TxScope is one bounded unit of work over the owning client's physical
// connection and lock. Exactly one of Commit or Rollback may succeed.
type TxScope struct {
	client    *Client
	tx        txHandle
	runner    statementRunner
	prev      *TxScope
	finalized bool
}

// Begin starts a database-level transaction over the client's connection,
// wrapped by the reconnect policy, and installs the scope as current for
// this connection name, recording the previous value.
func (c *Client) Begin(ctx context.Context) (*TxScope, error) {
	tx, err := c.runner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	scope := &TxScope{client: c, tx: tx}
	scope.runner = &translateRunner{
		next:    &retryRunner{next: &txRunner{scope: scope}, rc: c, log: c.log},
		dialect: c.dialect,
	}
	scope.prev = c.txs.swap(c.name, scope)
	return scope, nil
}

// ConnectionName returns the owning client's connection name.
func (t *TxScope) ConnectionName() string { return t.client.name }

// Dialect returns the owning client's backend specialization.
func (t *TxScope) Dialect() Dialect { return t.client.dialect }

// InsertCache returns the owning client's insert-plan cache.
func (t *TxScope) InsertCache() *InsertCache { return t.client.cache }

// ExecuteQuery runs a SELECT-shaped statement inside the transaction.
func (t *TxScope) ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	begin := time.Now()
	rows, err := t.runner.Query(ctx, query, args)
	t.client.log.Trace(ctx, begin, func() (string, int64) { return query, int64(len(rows)) }, err)
	return rows, err
}

// Execute runs a statement that returns nothing inside the transaction.
func (t *TxScope) Execute(ctx context.Context, query string, args ...interface{}) error {
	begin := time.Now()
	err := t.runner.Exec(ctx, query, args)
	t.client.log.Trace(ctx, begin, func() (string, int64) { return query, -1 }, err)
	return err
}

// ExecuteInsert runs an INSERT inside the transaction.
func (t *TxScope) ExecuteInsert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	begin := time.Now()
	id, err := t.runner.Insert(ctx, query, args)
	t.client.log.Trace(ctx, begin, func() (string, int64) { return query, 1 }, err)
	return id, err
}

// Commit finalizes the scope and commits the transaction. Calling it on an
// already finalized scope fails with a transaction management error.
func (t *TxScope) Commit(ctx context.Context) error {
	if t.finalized {
		return NewError(KindTransaction, "transaction already finalised")
	}
	t.finalized = true
	defer t.client.txs.restore(t.client.name, t.prev)

	if err := t.tx.Commit(); err != nil {
		return t.client.dialect.Translate(err)
	}
	return nil
}

// Rollback finalizes the scope and rolls the transaction back. Calling it on
// an already finalized scope fails with a transaction management error.
func (t *TxScope) Rollback(ctx context.Context) error {
	if t.finalized {
		return NewError(KindTransaction, "transaction already finalised")
	}
	t.finalized = true
	defer t.client.txs.restore(t.client.name, t.prev)

	if err := t.tx.Rollback(); err != nil {
		return t.client.dialect.Translate(err)
	}
	return nil
}

// Finalized reports whether commit or rollback already ran.
func (t *TxScope) Finalized() bool { return t.finalized }
