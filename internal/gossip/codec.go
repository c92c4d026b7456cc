package gossip

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Wire format: a delimited header line followed by the raw payload bytes.
//
//	id|ttl|origin|payloadLen|checksum\n<payload>
//
// The payload is length-prefixed rather than escaped, so it may contain any
// bytes including the separator and newlines. id and origin must not contain
// the separator or a newline; Encode rejects them. checksum is the xxhash64
// of the payload in hex, letting receivers drop frames corrupted in transit
// without crashing on garbage payloads.

const (
	fieldSeparator = "|"
	headerFields   = 5

	// MaxPayloadSize bounds a single message payload. Oversized frames are
	// rejected before allocation.
	MaxPayloadSize = 1 << 20 // 1 MiB
)

// ErrMalformed reports a frame that violates the wire format. Malformed
// inbound messages are dropped and logged, never retried.
var ErrMalformed = errors.New("malformed message")

// Encode serializes m into its wire representation.
func Encode(m Message) ([]byte, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrMalformed)
	}
	if m.TTL < 0 {
		return nil, fmt.Errorf("%w: negative ttl %d", ErrMalformed, m.TTL)
	}
	if err := checkToken("id", m.ID); err != nil {
		return nil, err
	}
	if err := checkToken("origin", m.Origin); err != nil {
		return nil, err
	}
	if len(m.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds limit", ErrMalformed, len(m.Payload))
	}

	var buf bytes.Buffer
	buf.Grow(len(m.ID) + len(m.Origin) + len(m.Payload) + 48)
	buf.WriteString(m.ID)
	buf.WriteString(fieldSeparator)
	buf.WriteString(strconv.Itoa(m.TTL))
	buf.WriteString(fieldSeparator)
	buf.WriteString(m.Origin)
	buf.WriteString(fieldSeparator)
	buf.WriteString(strconv.Itoa(len(m.Payload)))
	buf.WriteString(fieldSeparator)
	buf.WriteString(strconv.FormatUint(xxhash.Sum64(m.Payload), 16))
	buf.WriteByte('\n')
	buf.Write(m.Payload)
	return buf.Bytes(), nil
}

// Decode parses a wire frame produced by Encode. All failures wrap
// ErrMalformed so the router can classify them as drop-and-log.
func Decode(frame []byte) (Message, error) {
	nl := bytes.IndexByte(frame, '\n')
	if nl < 0 {
		return Message{}, fmt.Errorf("%w: missing header terminator", ErrMalformed)
	}

	fields := strings.Split(string(frame[:nl]), fieldSeparator)
	if len(fields) != headerFields {
		return Message{}, fmt.Errorf("%w: expected %d header fields, got %d", ErrMalformed, headerFields, len(fields))
	}

	id, ttlStr, origin, lenStr, sumStr := fields[0], fields[1], fields[2], fields[3], fields[4]
	if id == "" {
		return Message{}, fmt.Errorf("%w: empty id", ErrMalformed)
	}

	ttl, err := strconv.Atoi(ttlStr)
	if err != nil || ttl < 0 {
		return Message{}, fmt.Errorf("%w: bad ttl %q", ErrMalformed, ttlStr)
	}

	payloadLen, err := strconv.Atoi(lenStr)
	if err != nil || payloadLen < 0 || payloadLen > MaxPayloadSize {
		return Message{}, fmt.Errorf("%w: bad payload length %q", ErrMalformed, lenStr)
	}

	payload := frame[nl+1:]
	if len(payload) != payloadLen {
		return Message{}, fmt.Errorf("%w: payload length %d does not match declared %d", ErrMalformed, len(payload), payloadLen)
	}

	sum, err := strconv.ParseUint(sumStr, 16, 64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad checksum %q", ErrMalformed, sumStr)
	}
	if xxhash.Sum64(payload) != sum {
		return Message{}, fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	}

	// Copy the payload out of the frame buffer: transports may reuse it.
	out := make([]byte, payloadLen)
	copy(out, payload)

	return Message{ID: id, TTL: ttl, Origin: origin, Payload: out}, nil
}

func checkToken(name, v string) error {
	if strings.Contains(v, fieldSeparator) || strings.ContainsAny(v, "\n\r") {
		return fmt.Errorf("%w: %s contains reserved characters", ErrMalformed, name)
	}
	return nil
}
