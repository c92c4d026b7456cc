package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// MaxFrameSize bounds a single wire frame. Oversized frames indicate a
	// corrupt stream or a misbehaving peer and poison the connection.
	MaxFrameSize = 2 << 20 // 2 MiB

	frameHeaderSize = 4
	defaultTimeout  = 5 * time.Second
)

// TCPTransport implements Transport over TCP with length-prefixed frames:
// a 4-byte big-endian frame length followed by the frame bytes.
type TCPTransport struct {
	// WriteTimeout bounds each frame write. Zero means defaultTimeout.
	WriteTimeout time.Duration
}

// NewTCP creates a TCPTransport with default settings.
func NewTCP() *TCPTransport {
	return &TCPTransport{WriteTimeout: defaultTimeout}
}

// Dial connects to addr, honoring ctx for cancellation.
func (t *TCPTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return t.wrap(conn), nil
}

// Listen starts a TCP listener on addr.
func (t *TCPTransport) Listen(addr string) (Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &tcpListener{lis: lis, transport: t}, nil
}

func (t *TCPTransport) wrap(conn net.Conn) *tcpConn {
	timeout := t.WriteTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &tcpConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: timeout,
	}
}

type tcpListener struct {
	lis       net.Listener
	transport *TCPTransport
}

func (l *tcpListener) Accept() (Conn, error) {
	conn, err := l.lis.Accept()
	if err != nil {
		return nil, err
	}
	return l.transport.wrap(conn), nil
}

func (l *tcpListener) Close() error {
	return l.lis.Close()
}

func (l *tcpListener) Addr() string {
	return l.lis.Addr().String()
}

// tcpConn frames a net.Conn. Writes are serialized by a mutex and bounded
// by a deadline; reads happen on the connection's single reader goroutine.
type tcpConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func (c *tcpConn) Send(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(frame))
	}

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	defer c.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck

	if _, err := c.conn.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *tcpConn) Receive() ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(c.reader, frame); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return frame, nil
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
