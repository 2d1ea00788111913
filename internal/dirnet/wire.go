package dirnet

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/roach88/kelwitness/internal/codec"
)

const serviceName = "kelwitness.directory.v1.Directory"

const (
	methodPing      = "/" + serviceName + "/Ping"
	methodStore     = "/" + serviceName + "/Store"
	methodFindValue = "/" + serviceName + "/FindValue"
)

// PingRequest introduces the caller. From is the caller's advertised
// address, empty for clients that do not serve.
type PingRequest struct {
	From string `cbor:"from,omitempty"`
}

// PingResponse lists the peers the callee knows.
type PingResponse struct {
	Peers []string `cbor:"peers"`
}

// StoreRequest asks the callee to hold a value.
type StoreRequest struct {
	From  string `cbor:"from,omitempty"`
	Key   []byte `cbor:"key"`
	Value string `cbor:"value"`
}

// StoreResponse acknowledges a StoreRequest.
type StoreResponse struct{}

// FindValueRequest asks for the value of Key.
type FindValueRequest struct {
	From string `cbor:"from,omitempty"`
	Key  []byte `cbor:"key"`
}

// FindValueResponse carries the value when Found, and always the peers
// the callee knows so the caller can widen its search.
type FindValueResponse struct {
	Found bool     `cbor:"found"`
	Value string   `cbor:"value,omitempty"`
	Peers []string `cbor:"peers"`
}

// directoryServer is the service implemented by Node.
type directoryServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Store(context.Context, *StoreRequest) (*StoreResponse, error)
	FindValue(context.Context, *FindValueRequest) (*FindValueResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*directoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "Store", Handler: storeHandler},
		{MethodName: "FindValue", Handler: findValueHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dirnet/wire.go",
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(directoryServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPing}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(directoryServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func storeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StoreRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(directoryServer).Store(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStore}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(directoryServer).Store(ctx, req.(*StoreRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func findValueHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FindValueRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(directoryServer).FindValue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFindValue}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(directoryServer).FindValue(ctx, req.(*FindValueRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// cborCodec carries directory messages as deterministic CBOR instead of
// protobuf.
type cborCodec struct{}

var _ encoding.Codec = cborCodec{}

func (cborCodec) Marshal(v any) ([]byte, error)      { return codec.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return codec.Unmarshal(data, v) }
func (cborCodec) Name() string                       { return "cbor" }
