package gossip

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "basic message",
			msg:  Message{ID: "msg-1", TTL: 5, Origin: "node-a", Payload: []byte("hello")},
		},
		{
			name: "zero ttl",
			msg:  Message{ID: "msg-2", TTL: 0, Origin: "node-b", Payload: []byte("last hop")},
		},
		{
			name: "empty payload",
			msg:  Message{ID: "msg-3", TTL: 3, Origin: "node-c", Payload: []byte{}},
		},
		{
			name: "payload containing separator and newlines",
			msg:  Message{ID: "msg-4", TTL: 2, Origin: "node-d", Payload: []byte("a|b\nc|d\r\n")},
		},
		{
			name: "binary payload",
			msg:  Message{ID: "msg-5", TTL: 1, Origin: "node-e", Payload: []byte{0x00, 0xff, 0x7c, 0x0a, 0x00}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncode_RejectsReservedCharacters(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "separator in id", msg: Message{ID: "bad|id", TTL: 1, Origin: "a", Payload: nil}},
		{name: "newline in id", msg: Message{ID: "bad\nid", TTL: 1, Origin: "a", Payload: nil}},
		{name: "separator in origin", msg: Message{ID: "ok", TTL: 1, Origin: "no|de", Payload: nil}},
		{name: "empty id", msg: Message{ID: "", TTL: 1, Origin: "a", Payload: nil}},
		{name: "negative ttl", msg: Message{ID: "ok", TTL: -1, Origin: "a", Payload: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.msg); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid, err := Encode(Message{ID: "msg-1", TTL: 5, Origin: "node-a", Payload: []byte("hello")})
	if err != nil {
		t.Fatal(err)
	}

	truncated := valid[:len(valid)-2]

	corrupted := bytes.Clone(valid)
	corrupted[len(corrupted)-1] ^= 0xff

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "empty frame", frame: nil},
		{name: "no header terminator", frame: []byte("msg-1|5|node-a|5|abc")},
		{name: "too few fields", frame: []byte("msg-1|5|node-a\nhello")},
		{name: "non-numeric ttl", frame: []byte("msg-1|five|node-a|5|0\nhello")},
		{name: "negative ttl on wire", frame: []byte("msg-1|-2|node-a|5|0\nhello")},
		{name: "payload length mismatch", frame: truncated},
		{name: "corrupted payload fails checksum", frame: corrupted},
		{name: "bad checksum field", frame: []byte("msg-1|5|node-a|5|zzzz-\nhello")},
		{name: "oversized declared length", frame: []byte("msg-1|5|node-a|9999999999|0\nhello")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.frame); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecode_CopiesPayload(t *testing.T) {
	frame, err := Encode(Message{ID: "msg-1", TTL: 1, Origin: "node-a", Payload: []byte("hello")})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the frame buffer must not corrupt the decoded message.
	for i := range frame {
		frame[i] = 0
	}
	if string(msg.Payload) != "hello" {
		t.Errorf("payload aliased the frame buffer: %q", msg.Payload)
	}
}

func TestEncode_OversizedPayload(t *testing.T) {
	msg := Message{ID: "big", TTL: 1, Origin: "node-a", Payload: bytes.Repeat([]byte("x"), MaxPayloadSize+1)}
	if _, err := Encode(msg); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for oversized payload, got %v", err)
	}
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		m := NewMessage("node-a", 5, []byte("x"))
		if seen[m.ID] {
			t.Fatalf("duplicate id generated: %s", m.ID)
		}
		if strings.Contains(m.ID, fieldSeparator) {
			t.Fatalf("generated id contains separator: %s", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestForwarded_DecrementsTTLWithoutMutating(t *testing.T) {
	orig := Message{ID: "msg-1", TTL: 5, Origin: "node-a", Payload: []byte("hello")}
	fwd := orig.Forwarded()

	if fwd.TTL != 4 {
		t.Errorf("expected forwarded ttl 4, got %d", fwd.TTL)
	}
	if orig.TTL != 5 {
		t.Errorf("original ttl mutated to %d", orig.TTL)
	}
	if fwd.ID != orig.ID {
		t.Errorf("forwarded copy must keep the logical id, got %s", fwd.ID)
	}
}
