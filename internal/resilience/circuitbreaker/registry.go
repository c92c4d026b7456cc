package circuitbreaker

import (
	"sync"

	"github.com/sony/gobreaker"
)

// Registry manages one circuit breaker per endpoint. Two callers targeting
// the same endpoint share a breaker instance; unrelated endpoints never do.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	newCfg   func(endpoint string) Config
}

// NewRegistry creates a Registry. newCfg produces the configuration for an
// endpoint's breaker the first time that endpoint is seen; if nil,
// DefaultConfig is used.
func NewRegistry(newCfg func(endpoint string) Config) *Registry {
	if newCfg == nil {
		newCfg = DefaultConfig
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		newCfg:   newCfg,
	}
}

// Get returns the breaker for endpoint, creating it on first use.
func (r *Registry) Get(endpoint string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[endpoint]
	if !ok {
		cb = New(r.newCfg(endpoint))
		r.breakers[endpoint] = cb
	}
	return cb
}

// Remove drops the breaker for endpoint. The next Get creates a fresh one
// in the closed state. Intended for peers that have been removed for good;
// a transiently disconnected peer should keep its breaker history.
func (r *Registry) Remove(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, endpoint)
}

// Status describes one endpoint's breaker state, for health reporting.
type Status struct {
	Endpoint string
	State    gobreaker.State
}

// Snapshot returns the current state of every known breaker.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.breakers))
	for endpoint, cb := range r.breakers {
		out = append(out, Status{Endpoint: endpoint, State: cb.State()})
	}
	return out
}
