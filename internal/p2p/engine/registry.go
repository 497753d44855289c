package engine

import (
	"errors"
	"sort"
	"sync"

	"github.com/chanhub/chansync/internal/p2p/transport"
)

var (
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrDuplicateIdentity = errors.New("identity already registered")
)

// Registry holds the engines hosted by this process, keyed by identifier.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

func (r *Registry) Register(e *Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[e.Identifier()]; ok {
		return ErrDuplicateIdentity
	}
	r.engines[e.Identifier()] = e
	return nil
}

func (r *Registry) Get(identifier string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[identifier]
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return e, nil
}

// Resolve adapts the registry to transport.Resolver.
func (r *Registry) Resolve(identifier string) (transport.ProtocolHandler, bool) {
	e, err := r.Get(identifier)
	if err != nil {
		return nil, false
	}
	return e, true
}

// Engines returns the registered engines ordered by identifier.
func (r *Registry) Engines() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier() < out[j].Identifier() })
	return out
}
