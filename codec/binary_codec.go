package codec

import (
	"encoding/binary"
	"errors"

	"mezzenger/message"
)

// BinaryBodyCodec implements a custom binary serialization for the body of a
// Message (everything but Name, see codec.go).
//
// Binary format:
//
//	┌──────────┬─────────┬────────────┬─────────┬───────────┬────────┐
//	│ Ack (4)  │ Ts (8)  │ PayloadLen │ Payload │ CsLen (2) │ CsBytes│
//	│ uint32   │ int64   │ uint32     │         │ uint16    │        │
//	└──────────┴─────────┴────────────┴─────────┴───────────┴────────┘
type BinaryBodyCodec struct{}

func (c *BinaryBodyCodec) Type() BodyCodecType { return TypeBinary }

func (c *BinaryBodyCodec) EncodeBody(m message.Message) ([]byte, error) {
	total := 4 + 8 + 4 + len(m.Payload) + 2 + len(m.Checksum)
	buf := make([]byte, total)

	offset := 0
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(m.Ack))
	offset += 4
	binary.BigEndian.PutUint64(buf[offset:offset+8], uint64(m.Timestamp.UnixNano()))
	offset += 8
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(m.Payload)))
	offset += 4
	copy(buf[offset:offset+len(m.Payload)], m.Payload)
	offset += len(m.Payload)
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(m.Checksum)))
	offset += 2
	copy(buf[offset:offset+len(m.Checksum)], m.Checksum)

	return buf, nil
}

func (c *BinaryBodyCodec) DecodeBody(data []byte) (int, []byte, int64, string, error) {
	if len(data) < 16 {
		return 0, nil, 0, "", errors.New("truncated body: missing fixed header")
	}
	offset := 0
	ack := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	tsNano := int64(binary.BigEndian.Uint64(data[offset : offset+8]))
	offset += 8

	if len(data) < offset+4 {
		return 0, nil, 0, "", errors.New("truncated body: missing payload length")
	}
	payloadLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4

	if len(data) < offset+payloadLen+2 {
		return 0, nil, 0, "", errors.New("truncated body: payload/checksum length mismatch")
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[offset:offset+payloadLen])
	offset += payloadLen

	csLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if len(data) < offset+csLen {
		return 0, nil, 0, "", errors.New("truncated body: checksum length mismatch")
	}
	checksum := string(data[offset : offset+csLen])

	return ack, payload, tsNano, checksum, nil
}
