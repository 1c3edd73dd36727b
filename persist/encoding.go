package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"mezzenger/codec"
	"mezzenger/wire"
)

// encodeTable serializes a Table as: uint32 entry count, then for each entry
// an 8-byte big-endian LastResentAt (UnixNano) followed by a wire frame
// carrying the codec-encoded message. Built entirely on the codec/wire
// primitives the broker and client already use, rather than introducing a
// separate general-purpose serialization library for what is, structurally,
// just another sequence of mezzenger frames.
func encodeTable(c *codec.Codec, t Table) ([]byte, error) {
	var buf bytes.Buffer

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(t)))
	buf.Write(count[:])

	for _, entry := range t {
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(entry.LastResentAt.UnixNano()))
		buf.Write(ts[:])

		frame, err := c.Encode(entry.Msg)
		if err != nil {
			return nil, fmt.Errorf("persist: encoding retained message %q: %w", entry.Msg.Checksum, err)
		}
		if err := wire.WriteFrame(&buf, wire.FrameMessage, frame); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// decodeTable is encodeTable's inverse.
func decodeTable(c *codec.Codec, data []byte) (Table, error) {
	if len(data) == 0 {
		return Table{}, nil
	}
	r := bytes.NewReader(data)

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("persist: reading entry count: %w", err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	t := make(Table, count)
	for i := uint32(0); i < count; i++ {
		var tsBuf [8]byte
		if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
			return nil, fmt.Errorf("persist: reading entry timestamp: %w", err)
		}
		tsNano := int64(binary.BigEndian.Uint64(tsBuf[:]))

		_, body, err := wire.ReadFrame(r)
		if err != nil {
			return nil, fmt.Errorf("persist: reading retained message frame: %w", err)
		}
		msg, err := c.Decode(body)
		if err != nil {
			return nil, fmt.Errorf("persist: decoding retained message: %w", err)
		}

		t[msg.Checksum] = Entry{
			LastResentAt: unixNanoToTime(tsNano),
			Msg:          msg,
		}
	}
	return t, nil
}
