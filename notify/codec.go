package notify

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the serialization contract for events crossing a
// process boundary (Redis channels, WebSocket frames).
type Codec interface {
	// Encode serializes an event to bytes.
	Encode(evt *Event) ([]byte, error)

	// Decode deserializes bytes into an event.
	Decode(data []byte) (*Event, error)

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// CodecName constants for format negotiation.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return &MsgpackCodec{}
	default:
		return &JSONCodec{}
	}
}

// JSONCodec encodes events as JSON. It is the wire default because
// browser clients consume it directly.
type JSONCodec struct{}

// Encode implements Codec.
func (c *JSONCodec) Encode(evt *Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode implements Codec.
func (c *JSONCodec) Decode(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Name implements Codec.
func (c *JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes events as MessagePack. It is the default for
// Redis fan-out where frames stay machine-to-machine.
type MsgpackCodec struct{}

// Encode implements Codec.
func (c *MsgpackCodec) Encode(evt *Event) ([]byte, error) {
	return msgpack.Marshal(evt)
}

// Decode implements Codec.
func (c *MsgpackCodec) Decode(data []byte) (*Event, error) {
	var evt Event
	if err := msgpack.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Name implements Codec.
func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }
