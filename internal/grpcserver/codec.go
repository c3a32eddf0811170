package grpcserver

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the content-subtype clients select with grpc.CallContentSubtype.
const CodecName = "json"

// jsonCodec carries the gifting messages as plain JSON. Protobuf messages sharing the
// connection, such as health checks, use the canonical protobuf JSON mapping.
type jsonCodec struct{}

func (jsonCodec) Marshal(value any) ([]byte, error) {
	if message, ok := value.(proto.Message); ok {
		return protojson.Marshal(message)
	}
	return json.Marshal(value)
}

func (jsonCodec) Unmarshal(data []byte, value any) error {
	if message, ok := value.(proto.Message); ok {
		return protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(data, message)
	}
	return json.Unmarshal(data, value)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
