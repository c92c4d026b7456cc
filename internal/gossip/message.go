// Package gossip implements the epidemic messaging protocol: message
// identity, the wire codec, duplicate suppression, and the router that
// delivers locally and fans out to peers.
package gossip

import (
	"github.com/google/uuid"
)

// Message is one logical gossip message. The ID is globally unique per
// logical message, not per hop: every forwarded copy carries the same ID so
// receivers can suppress duplicates wherever the copy arrived from.
//
// A Message is immutable once created. Forwarding never mutates TTL in
// place; Forwarded returns a decremented copy.
type Message struct {
	// ID is an opaque unique token identifying the logical message.
	ID string

	// TTL is the remaining hop budget. A message with TTL 0 is delivered
	// but not forwarded further.
	TTL int

	// Origin identifies the node that created the message.
	Origin string

	// Payload is the opaque application payload.
	Payload []byte
}

// NewMessage creates an originated message with a fresh unique ID.
func NewMessage(origin string, ttl int, payload []byte) Message {
	return Message{
		ID:      uuid.NewString(),
		TTL:     ttl,
		Origin:  origin,
		Payload: payload,
	}
}

// Forwarded returns a copy of m with TTL decremented by one hop.
func (m Message) Forwarded() Message {
	fwd := m
	fwd.TTL = m.TTL - 1
	return fwd
}
