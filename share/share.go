package share

import (
	"github.com/marsevilspirit/greeter/codec"
	"github.com/marsevilspirit/greeter/protocol"
)

// ContextKey is the type of context keys shared by client and server.
type ContextKey string

const (
	// ReqMetaDataKey holds a map[string]string sent along with a call.
	ReqMetaDataKey = ContextKey("__req_metadata")
	// ResMetaDataKey holds a map[string]string the client fills with response metadata.
	ResMetaDataKey = ContextKey("__res_metadata")
	// StartRequestContextKey holds the time.Time a request was read.
	StartRequestContextKey = ContextKey("__start_request")
	// MethodKnownContextKey holds a bool, true when the request names a
	// registered service method.
	MethodKnownContextKey = ContextKey("__method_known")
)

var (
	Codecs = map[protocol.SerializeType]codec.Codec{
		protocol.SerializeNone: &codec.ByteCodec{},
		protocol.JSON:          &codec.JSONCodec{},
		protocol.ProtoBuffer:   &codec.ProtobufCodec{},
		protocol.MsgPack:       &codec.MsgpackCodec{},
	}
)

// RegisterCodec installs c for serialize type t. Call it before serving.
func RegisterCodec(t protocol.SerializeType, c codec.Codec) {
	Codecs[t] = c
}
