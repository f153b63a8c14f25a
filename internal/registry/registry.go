package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/node"
)

// Module is the interface that all node palette modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds every node type known to a single application instance,
// keyed by the schema ID.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*node.Schema
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{schemas: make(map[string]*node.Schema)}
}

// Register adds a node type. Registering the same ID twice panics.
func (r *Registry) Register(s *node.Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	if _, exists := r.schemas[id]; exists {
		panic(fmt.Sprintf("node type '%s' already registered", id))
	}
	slog.Debug("Registering node type.", "type", id)
	r.schemas[id] = s
}

// Lookup finds a node type by ID.
func (r *Registry) Lookup(id string) (*node.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", apperr.ErrUnknownNodeType, id)
	}
	return s, nil
}

// IDs lists the registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Schemas lists the registered node types sorted by ID.
func (r *Registry) Schemas() []*node.Schema {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*node.Schema, len(ids))
	for i, id := range ids {
		out[i] = r.schemas[id]
	}
	return out
}
