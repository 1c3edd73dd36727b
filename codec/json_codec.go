package codec

import (
	"encoding/json"

	"mezzenger/message"
)

// JSONBodyCodec uses encoding/json, trading BinaryBodyCodec's speed for
// human-readable frames — handy when tracing broker traffic with a plain TCP
// dump.
type JSONBodyCodec struct{}

func (c *JSONBodyCodec) Type() BodyCodecType { return TypeJSON }

type jsonBody struct {
	Ack       int    `json:"ack"`
	Timestamp int64  `json:"timestamp"`
	Payload   []byte `json:"payload"`
	Checksum  string `json:"checksum"`
}

func (c *JSONBodyCodec) EncodeBody(m message.Message) ([]byte, error) {
	return json.Marshal(jsonBody{
		Ack:       m.Ack,
		Timestamp: m.Timestamp.UnixNano(),
		Payload:   m.Payload,
		Checksum:  m.Checksum,
	})
}

func (c *JSONBodyCodec) DecodeBody(data []byte) (int, []byte, int64, string, error) {
	var b jsonBody
	if err := json.Unmarshal(data, &b); err != nil {
		return 0, nil, 0, "", err
	}
	return b.Ack, b.Payload, b.Timestamp, b.Checksum, nil
}
