package relay

import (
	"errors"
	"sync"
)

var (
	// ErrConnectionNotFound is returned by Push when the target connection
	// closed between a registry snapshot and the send. Callers treat it as
	// a soft error.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionExists is returned by Register for a duplicate ID.
	ErrConnectionExists = errors.New("connection already registered")

	// ErrServerFull is returned by Register when the configured client
	// capacity is reached.
	ErrServerFull = errors.New("server full")
)

// Sender pushes one serialized message to a live connection. Implementations
// must be safe for concurrent use: the relay pushes to a connection from
// other connections' handler goroutines.
type Sender interface {
	Send(payload []byte) error
}

// Registry tracks every currently open connection by its identifier.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]Sender
	maxClients int // 0 means unlimited
}

func NewRegistry(maxClients int) *Registry {
	return &Registry{
		conns:      make(map[string]Sender),
		maxClients: maxClients,
	}
}

// Register adds a connection under id.
func (r *Registry) Register(id string, sender Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return ErrConnectionExists
	}
	if r.maxClients > 0 && len(r.conns) >= r.maxClients {
		return ErrServerFull
	}
	r.conns[id] = sender
	return nil
}

// Unregister removes a connection. Removing an unknown ID is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// All returns a snapshot of the open connection IDs. Iteration order is
// not significant.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Push sends payload to one connection. The send itself happens outside
// the registry lock.
func (r *Registry) Push(id string, payload []byte) error {
	r.mu.RLock()
	sender, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return sender.Send(payload)
}
