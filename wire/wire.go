// Package wire implements the length-delimited frame protocol every
// mezzenger TCP connection speaks: a fixed-size header followed by a
// variable-length body, read with io.ReadFull so a reader never has to
// guess where one frame ends and the next begins.
//
// There is no sequence field in the header: a connection never multiplexes
// more than one in-flight request, so nothing needs to route a reply back
// to one of several waiting callers. There is also no per-frame codec-type
// byte: the codec in use is a peer-wide configuration (see codec package),
// not a per-message choice.
//
// Frame format:
//
//	0      3  4        8
//	┌──────┬──┬────────┬───────────────┐
//	│magic │ty│ bodyLen│    body ...   │
//	│ mzg  │  │ uint32 │ bodyLen bytes │
//	└──────┴──┴────────┴───────────────┘
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic identifies a mezzenger frame, rejecting stray connections (e.g. an
// HTTP health checker hitting the broker port) fast instead of trying to
// interpret their bytes as a length prefix.
const (
	magic0 byte = 0x6d // 'm'
	magic1 byte = 0x7a // 'z'
	magic2 byte = 0x67 // 'g'

	// HeaderSize is 3 (magic) + 1 (frame type) + 4 (body length).
	HeaderSize = 8

	// MaxBodyLen bounds a single frame's body, guarding against a corrupt or
	// hostile length prefix forcing an unbounded allocation.
	MaxBodyLen = 64 << 20 // 64 MiB
)

// FrameType distinguishes the handful of frame shapes that travel over
// mezzenger's two endpoints.
type FrameType byte

const (
	// FrameMessage carries an encoded message.Message (used on both the
	// inbound request/reply endpoint and the outbound publish endpoint).
	FrameMessage FrameType = 0
	// FrameReplyOK is the broker's literal "OK" reply to an inbound frame.
	FrameReplyOK FrameType = 1
	// FrameSubscribe asks the broker's outbound endpoint to start forwarding
	// messages whose name matches the given prefix to this connection.
	FrameSubscribe FrameType = 2
	// FrameUnsubscribe reverses FrameSubscribe.
	FrameUnsubscribe FrameType = 3
)

// Header is the fixed 8-byte frame header.
type Header struct {
	Type    FrameType
	BodyLen uint32
}

// WriteFrame writes a complete frame (header + body) to w.
//
// Callers that share a writer across goroutines (the broker's per-connection
// writer, a client's request connection used concurrently with reconnect)
// must hold their own lock around WriteFrame.
func WriteFrame(w io.Writer, t FrameType, body []byte) error {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1], buf[2] = magic0, magic1, magic2
	buf[3] = byte(t)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one complete frame from r, validating the magic number and
// bounding the body length before allocating.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return Header{}, nil, err
	}

	if headerBuf[0] != magic0 || headerBuf[1] != magic1 || headerBuf[2] != magic2 {
		return Header{}, nil, fmt.Errorf("wire: invalid magic number: %x", headerBuf[0:3])
	}

	h := Header{
		Type:    FrameType(headerBuf[3]),
		BodyLen: binary.BigEndian.Uint32(headerBuf[4:8]),
	}
	if h.BodyLen > MaxBodyLen {
		return Header{}, nil, fmt.Errorf("wire: body length %d exceeds max %d", h.BodyLen, MaxBodyLen)
	}

	body := make([]byte, h.BodyLen)
	if h.BodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Header{}, nil, err
		}
	}
	return h, body, nil
}
