package peer

import (
	"fmt"
	"io"
	"sync"
	"testing"
)

type stubConn struct {
	addr   string
	mu     sync.Mutex
	closed bool
}

func (c *stubConn) Send(frame []byte) error { return nil }
func (c *stubConn) Receive() ([]byte, error) {
	return nil, io.EOF
}
func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *stubConn) RemoteAddr() string { return c.addr }

func TestRegistry_AddRemoveGet(t *testing.T) {
	r := NewRegistry()

	p := New("10.0.0.1:7946", &stubConn{addr: "10.0.0.1:7946"})
	if prev := r.Add(p); prev != nil {
		t.Errorf("expected no previous peer, got %v", prev.Addr())
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 peer, got %d", r.Len())
	}
	if got := r.Get("10.0.0.1:7946"); got != p {
		t.Error("Get must return the registered peer")
	}

	removed := r.Remove("10.0.0.1:7946")
	if removed != p {
		t.Error("Remove must return the removed peer")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	if r.Remove("10.0.0.1:7946") != nil {
		t.Error("removing an absent peer must return nil")
	}
	if r.Get("10.0.0.1:7946") != nil {
		t.Error("Get after Remove must return nil")
	}
}

func TestRegistry_RemovePeerChecksIdentity(t *testing.T) {
	r := NewRegistry()

	stale := New("10.0.0.1:7946", &stubConn{addr: "10.0.0.1:7946"})
	r.Add(stale)
	replacement := New("10.0.0.1:7946", &stubConn{addr: "10.0.0.1:7946"})
	r.Add(replacement)

	// The superseded peer must not evict its replacement.
	if r.RemovePeer(stale) {
		t.Error("RemovePeer must refuse a superseded peer")
	}
	if got := r.Get("10.0.0.1:7946"); got != replacement {
		t.Error("replacement peer must remain registered")
	}

	if !r.RemovePeer(replacement) {
		t.Error("RemovePeer must remove the current peer")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_AddReturnsReplacedPeer(t *testing.T) {
	r := NewRegistry()

	first := New("10.0.0.1:7946", &stubConn{addr: "10.0.0.1:7946"})
	second := New("10.0.0.1:7946", &stubConn{addr: "10.0.0.1:7946"})

	r.Add(first)
	prev := r.Add(second)

	if prev != first {
		t.Error("Add must hand back the replaced peer so its conn can be closed")
	}
	if r.Get("10.0.0.1:7946") != second {
		t.Error("latest registration must win")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 peer, got %d", r.Len())
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Add(New("a:1", &stubConn{addr: "a:1"}))
	r.Add(New("b:1", &stubConn{addr: "b:1"}))

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 peers in snapshot, got %d", len(snap))
	}

	// Mutating the registry must not affect the snapshot already taken.
	r.Remove("a:1")
	if len(snap) != 2 {
		t.Error("snapshot changed after registry mutation")
	}
}

func TestRegistry_ConcurrentMutationAndIteration(t *testing.T) {
	r := NewRegistry()

	var writers, readers sync.WaitGroup
	stop := make(chan struct{})

	// Writers add and remove peers continuously.
	for w := 0; w < 4; w++ {
		writers.Add(1)
		go func(w int) {
			defer writers.Done()
			for i := 0; i < 200; i++ {
				addr := fmt.Sprintf("peer-%d-%d:1", w, i%10)
				r.Add(New(addr, &stubConn{addr: addr}))
				if i%3 == 0 {
					r.Remove(addr)
				}
			}
		}(w)
	}

	// Readers iterate snapshots while writers mutate. Run under -race this
	// verifies iteration never observes a half-mutated structure.
	for reader := 0; reader < 4; reader++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, p := range r.Snapshot() {
					_ = p.Addr()
				}
			}
		}()
	}

	writers.Wait()
	close(stop)
	readers.Wait()
}
