package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryNetwork is an in-process Transport for tests: nodes listen on
// logical addresses and frames move over buffered channels. It lets
// multi-node scenarios run without sockets or timing dependence on the OS.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
}

// NewMemoryNetwork creates an empty in-process network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{listeners: make(map[string]*memoryListener)}
}

// Node returns a Transport view of the network for a node at addr: Dial
// reaches other nodes' listeners, and Listen claims addr on the network.
func (n *MemoryNetwork) Node(addr string) Transport {
	return &memoryTransport{network: n, local: addr}
}

type memoryTransport struct {
	network *MemoryNetwork
	local   string
}

func (t *memoryTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	t.network.mu.Lock()
	lis, ok := t.network.listeners[addr]
	t.network.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %s: no listener", addr)
	}

	local, remote := newConnPair(t.local, addr)
	select {
	case lis.accept <- remote:
		return local, nil
	case <-lis.closed:
		return nil, fmt.Errorf("dial %s: listener closed", addr)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *memoryTransport) Listen(addr string) (Listener, error) {
	t.network.mu.Lock()
	defer t.network.mu.Unlock()
	if _, exists := t.network.listeners[addr]; exists {
		return nil, fmt.Errorf("listen %s: address in use", addr)
	}
	lis := &memoryListener{
		addr:    addr,
		network: t.network,
		accept:  make(chan Conn, 16),
		closed:  make(chan struct{}),
	}
	t.network.listeners[addr] = lis
	return lis, nil
}

type memoryListener struct {
	addr      string
	network   *MemoryNetwork
	accept    chan Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *memoryListener) Accept() (Conn, error) {
	select {
	case conn := <-l.accept:
		return conn, nil
	case <-l.closed:
		return nil, fmt.Errorf("listener %s closed", l.addr)
	}
}

func (l *memoryListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.network.mu.Lock()
		delete(l.network.listeners, l.addr)
		l.network.mu.Unlock()
	})
	return nil
}

func (l *memoryListener) Addr() string {
	return l.addr
}

// newConnPair builds two connected endpoints; frames sent on one side
// arrive on the other.
func newConnPair(addrA, addrB string) (Conn, Conn) {
	aToB := make(chan []byte, 64)
	bToA := make(chan []byte, 64)
	closed := make(chan struct{})
	once := &sync.Once{}

	a := &memoryConn{remote: addrB, out: aToB, in: bToA, closed: closed, closeOnce: once}
	b := &memoryConn{remote: addrA, out: bToA, in: aToB, closed: closed, closeOnce: once}
	return a, b
}

type memoryConn struct {
	remote    string
	out       chan<- []byte
	in        <-chan []byte
	closed    chan struct{}
	closeOnce *sync.Once
}

func (c *memoryConn) Send(frame []byte) error {
	// Copy: the caller may reuse its buffer after Send returns.
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case c.out <- buf:
		return nil
	case <-c.closed:
		return fmt.Errorf("send to %s: connection closed", c.remote)
	}
}

func (c *memoryConn) Receive() ([]byte, error) {
	select {
	case frame := <-c.in:
		return frame, nil
	case <-c.closed:
		// Drain frames that arrived before the close.
		select {
		case frame := <-c.in:
			return frame, nil
		default:
			return nil, io.EOF
		}
	}
}

func (c *memoryConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *memoryConn) RemoteAddr() string {
	return c.remote
}
