package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestTCP_RoundTrip(t *testing.T) {
	tr := NewTCP()

	lis, err := tr.Listen("127.0.0.1:0")
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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dialed, err := tr.Dial(ctx, lis.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dialed.Close()

	var server Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not complete")
	}
	defer server.Close()

	frames := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xab}, 64*1024),
	}
	for i, want := range frames {
		if err := dialed.Send(want); err != nil {
			t.Fatalf("frame %d: Send: %v", i, err)
		}
		got, err := server.Receive()
		if err != nil {
			t.Fatalf("frame %d: Receive: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
}

func TestTCP_ReceiveEOFOnPeerClose(t *testing.T) {
	tr := NewTCP()

	lis, err := tr.Listen("127.0.0.1:0")
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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dialed, err := tr.Dial(ctx, lis.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer dialed.Close()

	if _, err := dialed.Receive(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on orderly close, got %v", err)
	}
}

func TestTCP_RejectsOversizedFrame(t *testing.T) {
	tr := NewTCP()

	lis, err := tr.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Receive()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dialed, err := tr.Dial(ctx, lis.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer dialed.Close()

	oversized := make([]byte, MaxFrameSize+1)
	if err := dialed.Send(oversized); err == nil {
		t.Error("expected error sending a frame above the limit")
	}
}

func TestTCP_ConcurrentSenders(t *testing.T) {
	tr := NewTCP()

	lis, err := tr.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()

	received := make(chan []byte, 64)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			frame, err := conn.Receive()
			if err != nil {
				close(received)
				return
			}
			received <- frame
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dialed, err := tr.Dial(ctx, lis.Addr())
	if err != nil {
		t.Fatal(err)
	}

	// Interleaved writers must never corrupt framing.
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			frame := bytes.Repeat([]byte{byte('a' + w)}, 1024)
			for i := 0; i < 8; i++ {
				if err := dialed.Send(frame); err != nil {
					t.Errorf("writer %d: %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	dialed.Close()

	count := 0
	for frame := range received {
		if len(frame) != 1024 {
			t.Fatalf("corrupted frame of %d bytes", len(frame))
		}
		first := frame[0]
		for _, b := range frame {
			if b != first {
				t.Fatal("interleaved frame contents")
			}
		}
		count++
	}
	if count != 64 {
		t.Errorf("expected 64 frames, got %d", count)
	}
}
