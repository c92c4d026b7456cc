package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestMemoryNetwork_DialAndAccept(t *testing.T) {
	network := NewMemoryNetwork()

	lis, err := network.Node("b").Listen("b")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lis.Close()

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- conn
	}()

	dialed, err := network.Node("a").Dial(context.Background(), "b")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	var server Conn
	select {
	case server = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("accept did not complete")
	}

	if dialed.RemoteAddr() != "b" {
		t.Errorf("dialer remote addr: expected b, got %s", dialed.RemoteAddr())
	}
	if server.RemoteAddr() != "a" {
		t.Errorf("server remote addr: expected a, got %s", server.RemoteAddr())
	}

	// Frames flow both ways.
	if err := dialed.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frame, err := server.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(frame) != "ping" {
		t.Errorf("expected ping, got %q", frame)
	}

	if err := server.Send([]byte("pong")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frame, err = dialed.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(frame) != "pong" {
		t.Errorf("expected pong, got %q", frame)
	}
}

func TestMemoryNetwork_DialUnknownAddress(t *testing.T) {
	network := NewMemoryNetwork()
	if _, err := network.Node("a").Dial(context.Background(), "nowhere"); err == nil {
		t.Error("expected error dialing an address with no listener")
	}
}

func TestMemoryNetwork_CloseUnblocksReceive(t *testing.T) {
	network := NewMemoryNetwork()

	lis, err := network.Node("b").Listen("b")
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}()

	dialed, err := network.Node("a").Dial(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := dialed.Receive()
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF after close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock on close")
	}
}

func TestMemoryNetwork_SendCopiesBuffer(t *testing.T) {
	a, b := newConnPair("a", "b")
	defer a.Close()

	frame := []byte("mutate me")
	if err := a.Send(frame); err != nil {
		t.Fatal(err)
	}
	for i := range frame {
		frame[i] = 0
	}

	got, err := b.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "mutate me" {
		t.Errorf("received frame aliased the sender's buffer: %q", got)
	}
}

func TestMemoryNetwork_ListenAddressInUse(t *testing.T) {
	network := NewMemoryNetwork()
	if _, err := network.Node("b").Listen("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := network.Node("b2").Listen("b"); err == nil {
		t.Error("expected error listening on an address already in use")
	}
}
