// Package status provides a small Status RPC that reports the state of the
// cached allowlist. It uses [grpc.ServiceDesc] registration so that no
// protobuf code generation is required.
//
// Because the request/response types are plain Go structs (not generated
// protobuf messages), the package registers a thin codec wrapper that
// JSON-encodes status types while delegating all other messages to the
// standard proto codec.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	grpcStatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// FullMethod is the full gRPC method name of the Get RPC.
const FullMethod = "/rawrsheets.Status/Get"

// Request is the input for the Get method.
type Request struct{}

// Response describes the cached allowlist.
type Response struct {
	// LastRefreshUnixMilli is zero when no refresh has succeeded yet.
	LastRefreshUnixMilli int64 `json:"last_refresh_unix_milli"`
	Entries              int   `json:"entries"`
	Due                  bool  `json:"due"`
	ServerTimeUnix       int64 `json:"server_time_unix"`
}

type statusMsg interface {
	isStatusMsg()
}

func (*Request) isStatusMsg()  {}
func (*Response) isStatusMsg() {}

// Handler is the interface that a Status service implementation must satisfy.
type Handler interface {
	Get(ctx context.Context, req *Request) (*Response, error)
}

// Source is what the default handler reports on.
type Source interface {
	LastRefresh(ctx context.Context) (time.Time, error)
	Due(ctx context.Context) (bool, error)
	Entries(ctx context.Context) (int, error)
}

// NewHandler returns a Handler backed by src. Storage errors are reported as
// codes.Unavailable.
func NewHandler(src Source) Handler { return sourceHandler{src: src} }

type sourceHandler struct {
	src Source
}

func (h sourceHandler) Get(ctx context.Context, _ *Request) (*Response, error) {
	last, err := h.src.LastRefresh(ctx)
	if err != nil {
		return nil, grpcStatus.Error(codes.Unavailable, err.Error())
	}
	due, err := h.src.Due(ctx)
	if err != nil {
		return nil, grpcStatus.Error(codes.Unavailable, err.Error())
	}
	n, err := h.src.Entries(ctx)
	if err != nil {
		return nil, grpcStatus.Error(codes.Unavailable, err.Error())
	}
	return &Response{
		LastRefreshUnixMilli: last.UnixMilli(),
		Entries:              n,
		Due:                  due,
		ServerTimeUnix:       time.Now().Unix(),
	}, nil
}

// ServiceDesc is the grpc.ServiceDesc for the rawrsheets.Status service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "rawrsheets.Status",
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Get",
			Handler:    getHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rawrsheets/status.proto",
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(Request)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Get(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod,
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Get(ctx, r.(*Request))
	}
	return interceptor(ctx, req, info, handler)
}

// Register registers a Status service implementation on the given gRPC server.
func Register(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

func init() {
	grpcEncoding.RegisterCodec(statusCodec{})
}

// statusCodec handles Request and Response via JSON and delegates all other
// types to proto.Marshal/Unmarshal.
type statusCodec struct{}

func (statusCodec) Name() string { return "proto" }

func (statusCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(statusMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("status codec: unsupported message type %T", v)
}

func (statusCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(statusMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("status codec: unsupported message type %T", v)
}
