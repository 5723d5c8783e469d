package api

import (
	"encoding/json"

	"google.golang.org/grpc"
)

// jsonCodec marshals gRPC messages as JSON. The Connector service has no
// .proto definitions in this repository, so the server is
// configured with grpc.ForceServerCodec(jsonCodec{}) instead of the default
// protobuf wire codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

// ServerOption returns the grpc.ServerOption that forces every RPC on the
// server to use jsonCodec, regardless of the client's declared content-subtype.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}
