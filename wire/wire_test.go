package wire

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	h, body, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if h.Type != FrameMessage {
		t.Errorf("Type: want %v got %v", FrameMessage, h.Type)
	}
	if string(body) != "hello" {
		t.Errorf("body: want %q got %q", "hello", body)
	}
}

func TestReadFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameReplyOK, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	h, body, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if h.BodyLen != 0 || len(body) != 0 {
		t.Errorf("expected empty body, got len %d", len(body))
	}
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	if _, _, err := ReadFrame(buf); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestReadFrameRejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{magic0, magic1, magic2, byte(FrameMessage), 0xFF, 0xFF, 0xFF, 0xFF})
	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatalf("expected error for oversized body length")
	}
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameSubscribe, []byte("T")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, FrameUnsubscribe, []byte("U")); err != nil {
		t.Fatal(err)
	}

	h1, b1, err := ReadFrame(&buf)
	if err != nil || h1.Type != FrameSubscribe || string(b1) != "T" {
		t.Fatalf("first frame mismatch: %v %v %q", h1, err, b1)
	}
	h2, b2, err := ReadFrame(&buf)
	if err != nil || h2.Type != FrameUnsubscribe || string(b2) != "U" {
		t.Fatalf("second frame mismatch: %v %v %q", h2, err, b2)
	}
}
