// Package codec serializes a message.Message into the wire frame
// `name || SEP || body` and back.
//
// Body serialization is pluggable: BinaryBodyCodec is the default,
// length-prefixed format; JSONBodyCodec is a human-readable alternate useful
// for debugging. The codec type is not stored per-frame — the wire contract
// only promises that the bytes up to SEP equal the message name, so the
// codec in use is a peer-wide configuration, not a per-message choice.
package codec

import (
	"bytes"
	"fmt"
	"time"

	"mezzenger/message"
)

// SEP is the single reserved byte separating name from body. It must never
// appear inside a message name.
const SEP byte = '|'

// ParseError is returned by Decode on a malformed frame: missing separator,
// truncated body, or a field-type mismatch inside the body.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("codec: parse error: %s", e.Reason)
}

// BodyCodec serializes/deserializes everything in a Message except Name,
// which is carried by the frame prefix instead so the broker can route by
// name without touching the body.
type BodyCodec interface {
	EncodeBody(m message.Message) ([]byte, error)
	DecodeBody(data []byte) (ack int, payload []byte, timestampUnixNano int64, checksum string, err error)
	Type() BodyCodecType
}

// BodyCodecType identifies the serialization format.
type BodyCodecType byte

const (
	TypeBinary BodyCodecType = 0
	TypeJSON   BodyCodecType = 1
)

// GetBodyCodec is a factory returning the codec for a given type.
func GetBodyCodec(t BodyCodecType) BodyCodec {
	if t == TypeJSON {
		return &JSONBodyCodec{}
	}
	return &BinaryBodyCodec{}
}

// Codec binds a BodyCodec to the fixed `name || SEP || body` frame shape.
type Codec struct {
	body BodyCodec
}

// New returns a Codec using the given body format. Passing TypeBinary is the
// default and matches every broker/client that doesn't override it.
func New(t BodyCodecType) *Codec {
	return &Codec{body: GetBodyCodec(t)}
}

// Encode produces `name || SEP || body`. The prefix up to SEP is guaranteed
// to equal m.Name byte-for-byte (the broker's publish-side filtering depends
// on this).
func (c *Codec) Encode(m message.Message) ([]byte, error) {
	if bytes.IndexByte([]byte(m.Name), SEP) >= 0 {
		return nil, fmt.Errorf("codec: name %q contains reserved separator", m.Name)
	}
	body, err := c.body.EncodeBody(m)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(m.Name)+1+len(body))
	buf = append(buf, m.Name...)
	buf = append(buf, SEP)
	buf = append(buf, body...)
	return buf, nil
}

// Decode splits at the first SEP and reconstructs a Message. It fails with
// *ParseError on a missing separator, a truncated body, or a field-type
// mismatch.
func (c *Codec) Decode(buf []byte) (message.Message, error) {
	idx := bytes.IndexByte(buf, SEP)
	if idx < 0 {
		return message.Message{}, &ParseError{Reason: "missing separator"}
	}
	name := string(buf[:idx])
	body := buf[idx+1:]

	ack, payload, tsNano, checksum, err := c.body.DecodeBody(body)
	if err != nil {
		return message.Message{}, &ParseError{Reason: err.Error()}
	}

	return message.Message{
		Name:      name,
		Payload:   payload,
		Ack:       ack,
		Timestamp: time.Unix(0, tsNano),
		Checksum:  checksum,
	}, nil
}
