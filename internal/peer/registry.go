package peer

import (
	"sync"
)

// Registry is the internally synchronized set of currently connected peers.
// Callers never hold the underlying map: reads go through Snapshot or Get,
// so iteration is always over a point-in-time copy and can never observe a
// half-mutated structure.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Add registers p under its address. If a peer with the same address was
// already registered, the previous entry is returned so the caller can
// close its connection; otherwise nil.
func (r *Registry) Add(p *Peer) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.peers[p.Addr()]
	r.peers[p.Addr()] = p
	return prev
}

// Remove unregisters the peer at addr and returns it, or nil if absent.
// Called on detected disconnect or explicit shutdown; the caller owns
// closing the returned peer's connection.
func (r *Registry) Remove(addr string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[addr]
	if !ok {
		return nil
	}
	delete(r.peers, addr)
	return p
}

// RemovePeer unregisters p only if it is still the registered entry for its
// address, and reports whether it did. A connection superseded by a newer
// one to the same address must not evict its replacement.
func (r *Registry) RemovePeer(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.peers[p.Addr()] != p {
		return false
	}
	delete(r.peers, p.Addr())
	return true
}

// Get returns the peer at addr, or nil.
func (r *Registry) Get(addr string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[addr]
}

// Snapshot returns a point-in-time copy of the current peers, safe to
// iterate while the registry keeps mutating.
func (r *Registry) Snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
