package quarry

import "sync"

// DefaultConnection is the registry name used when none is given.
const DefaultConnection = "default"

// Registry holds named clients. Routing through Connection returns the
// active transaction scope when one is open, so work started inside a scope
// stays on it.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: map[string]*Client{}}
}

// Register adds a client under its connection name.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnectionName()] = c
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Default returns the client registered under DefaultConnection.
func (r *Registry) Default() (*Client, bool) {
	return r.Get(DefaultConnection)
}

// Connection returns the execution surface for a connection name: the
// currently-active transaction scope if one is open, the base client
// otherwise.
func (r *Registry) Connection(name string) (DBClient, bool) {
	c, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	if tx := c.TxState().Current(name); tx != nil && !tx.Finalized() {
		return tx, true
	}
	return c, true
}

// Remove closes and drops a registered client.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[name]
	if !ok {
		return NewError(KindOperational, "connection %s is not registered", name)
	}
	delete(r.clients, name)
	return c.Close()
}

// CloseAll closes every registered client and empties the registry.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, c := range r.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.clients, name)
	}
	return first
}
