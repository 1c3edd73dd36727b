// Package message defines the Message envelope exchanged between mezzenger
// clients and the broker.
//
// A Message is value-like: it is copied across the wire and never shared by
// reference between a client and the broker. Every field except Checksum is
// assigned once at construction and is immutable thereafter.
package message

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Reserved control names. These are never fanned out by the broker; they are
// handled entirely inside the broker's inbound pipeline.
const (
	NamePing = "ping"
	NameAck  = "ack"
)

// Message carries one published or control frame.
type Message struct {
	Name      string    // routing key / subscription filter prefix
	Payload   []byte    // opaque application payload, may be empty
	Ack       int       // 0 = fire-and-forget, >0 = broker must retain+retransmit until acked
	Timestamp time.Time // assigned once at construction, immutable
	Checksum  string    // content-derived identity, required when Ack > 0
}

// New constructs a Message, assigning Timestamp now and computing Checksum
// when one is required (Ack > 0). A decoded message
// keeps the checksum carried on the wire rather than recomputing it.
func New(name string, payload []byte, ack int) Message {
	m := Message{
		Name:      name,
		Payload:   payload,
		Ack:       ack,
		Timestamp: time.Now(),
	}
	if ack > 0 {
		m.Checksum = m.computeChecksum()
	}
	return m
}

// computeChecksum hashes Name || Payload || Timestamp in a fixed encoding, so
// the result is stable regardless of which peer (producer or a decoding
// receiver) computes it.
func (m Message) computeChecksum() string {
	h := sha256.New()
	h.Write([]byte(m.Name))
	h.Write(m.Payload)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(m.Timestamp.UnixNano()))
	h.Write(ts[:])
	return fmt.Sprintf("%x", h.Sum(nil))
}

// String renders a human-readable dump of the message, used by verbose
// logging call sites.
func (m Message) String() string {
	return fmt.Sprintf(
		"\n==========\nName: %s\nAck: %d\nChecksum: %s\nPayload: %q\n==========\n",
		m.Name, m.Ack, m.Checksum, m.Payload,
	)
}

// IsControl reports whether this message is a reserved control message
// (ping or ack) that the broker must not fan out to subscribers.
func (m Message) IsControl() bool {
	return m.Name == NamePing || m.Name == NameAck
}
