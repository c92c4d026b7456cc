// Package peer tracks live peer connections. The Registry owns the
// connection handles: everything else addresses peers by address and works
// on snapshots, so no raw shared map ever escapes.
package peer

import (
	"time"

	"peermesh/internal/transport"
)

// Peer is one live connection to a remote node.
type Peer struct {
	addr      string
	conn      transport.Conn
	connected time.Time
}

// New creates a Peer wrapping an established connection.
func New(addr string, conn transport.Conn) *Peer {
	return &Peer{
		addr:      addr,
		conn:      conn,
		connected: time.Now(),
	}
}

// Addr returns the peer's address, the key it is registered under.
func (p *Peer) Addr() string {
	return p.addr
}

// ConnectedAt returns when the connection was established.
func (p *Peer) ConnectedAt() time.Time {
	return p.connected
}

// Send transmits one frame to the peer. Safe for concurrent callers; the
// underlying connection serializes writes.
func (p *Peer) Send(frame []byte) error {
	return p.conn.Send(frame)
}

// Receive blocks for the next inbound frame. One reader per peer.
func (p *Peer) Receive() ([]byte, error) {
	return p.conn.Receive()
}

// Close tears down the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
