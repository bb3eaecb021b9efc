package rpc

import "encoding/json"

// jsonCodec encodes messages as plain JSON. The messages are Go structs, not
// generated protobuf types, so the default Connect codecs do not apply.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
