// Package transport abstracts how raw frames move between peers. The gossip
// core only depends on the interfaces here; a TCP implementation is provided
// for production and an in-memory implementation for tests.
package transport

import "context"

// Conn is a bidirectional frame-oriented connection to one peer.
type Conn interface {
	// Send transmits one frame. Implementations bound the write with a
	// deadline and are safe for concurrent senders.
	Send(frame []byte) error

	// Receive blocks until the next frame arrives. It returns io.EOF when
	// the peer closed the connection in an orderly fashion. Receive is not
	// safe for concurrent callers; each connection has one reader.
	Receive() ([]byte, error)

	// Close tears the connection down. Pending Receive calls unblock.
	Close() error

	// RemoteAddr identifies the peer on the other end.
	RemoteAddr() string
}

// Listener accepts inbound connections.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() string
}

// Transport creates connections and listeners.
type Transport interface {
	Dial(ctx context.Context, addr string) (Conn, error)
	Listen(addr string) (Listener, error)
}
