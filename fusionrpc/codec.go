// Package fusionrpc exposes the coordinator's control surface over gRPC:
// ProposeSwap, GetSwap, AbortSwap, Drain, and StreamAlerts. Rather than
// generated protobuf stubs, the service is registered by hand against a
// grpc.ServiceDesc, and messages travel as JSON rather than protobuf wire
// format -- a jsonCodec plugged into google.golang.org/grpc/encoding lets
// grpc's framing, multiplexing, and interceptor chain do the work while
// keeping every message type a plain Go struct.
package fusionrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "json"

// jsonCodec implements encoding.Codec by marshaling messages as JSON
// instead of protobuf wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("fusionrpc: decode %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
