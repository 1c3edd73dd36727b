package codec

import (
	"bytes"
	"testing"

	"mezzenger/message"
)

func roundTrip(t *testing.T, c *Codec, m message.Message) message.Message {
	t.Helper()
	buf, err := c.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func assertEqualSemanticFields(t *testing.T, want, got message.Message) {
	t.Helper()
	if want.Name != got.Name {
		t.Errorf("Name: want %q got %q", want.Name, got.Name)
	}
	if !bytes.Equal(want.Payload, got.Payload) {
		t.Errorf("Payload: want %q got %q", want.Payload, got.Payload)
	}
	if want.Ack != got.Ack {
		t.Errorf("Ack: want %d got %d", want.Ack, got.Ack)
	}
	if !want.Timestamp.Equal(got.Timestamp) {
		t.Errorf("Timestamp: want %v got %v", want.Timestamp, got.Timestamp)
	}
	if want.Checksum != got.Checksum {
		t.Errorf("Checksum: want %q got %q", want.Checksum, got.Checksum)
	}
}

func TestRoundTripBinary(t *testing.T) {
	c := New(TypeBinary)
	for _, m := range []message.Message{
		message.New("T", []byte("hello"), 0),
		message.New("T", []byte("x"), 1),
		message.New("with.dots", nil, 0),
		message.New("empty-payload", []byte{}, 2),
	} {
		got := roundTrip(t, c, m)
		assertEqualSemanticFields(t, m, got)
	}
}

func TestRoundTripJSON(t *testing.T) {
	c := New(TypeJSON)
	m := message.New("T", []byte("hello"), 1)
	got := roundTrip(t, c, m)
	assertEqualSemanticFields(t, m, got)
}

func TestEncodePrefixEqualsName(t *testing.T) {
	c := New(TypeBinary)
	m := message.New("T", []byte("payload"), 0)
	buf, err := c.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte("T|")) {
		t.Fatalf("frame does not start with name || SEP: %q", buf)
	}
}

func TestEncodeRejectsNameContainingSep(t *testing.T) {
	c := New(TypeBinary)
	m := message.New("bad|name", nil, 0)
	if _, err := c.Encode(m); err == nil {
		t.Fatalf("expected error for name containing SEP")
	}
}

func TestDecodeMissingSeparator(t *testing.T) {
	c := New(TypeBinary)
	_, err := c.Decode([]byte("nosepatall"))
	if err == nil {
		t.Fatalf("expected ParseError")
	}
	var pe *ParseError
	if !asParseError(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	c := New(TypeBinary)
	_, err := c.Decode([]byte("T|short"))
	if err == nil {
		t.Fatalf("expected ParseError for truncated body")
	}
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}
