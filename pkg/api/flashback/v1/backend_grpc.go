// Package flashbackv1 is the gRPC surface of the flashback backend. The
// service carries google.protobuf.Struct messages, so it is registered
// from this hand-maintained descriptor rather than generated stubs.
package flashbackv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	Backend_Invoke_FullMethodName    = "/flashback.v1.Backend/Invoke"    //nolint:revive,stylecheck // grpc naming
	Backend_Subscribe_FullMethodName = "/flashback.v1.Backend/Subscribe" //nolint:revive,stylecheck // grpc naming
)

// BackendClient is the client API for the Backend service.
type BackendClient interface {
	Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type backendClient struct {
	cc grpc.ClientConnInterface
}

// NewBackendClient returns a BackendClient over cc.
func NewBackendClient(cc grpc.ClientConnInterface) BackendClient {
	return &backendClient{cc}
}

func (c *backendClient) Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, Backend_Invoke_FullMethodName, in, out, cOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backendClient) Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	stream, err := c.cc.NewStream(ctx, &Backend_ServiceDesc.Streams[0], Backend_Subscribe_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// BackendServer is the server API for the Backend service. Implementations
// must embed UnimplementedBackendServer.
type BackendServer interface {
	Invoke(context.Context, *structpb.Struct) (*structpb.Value, error)
	Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
	mustEmbedUnimplementedBackendServer()
}

// UnimplementedBackendServer must be embedded for forward compatibility.
type UnimplementedBackendServer struct{}

func (UnimplementedBackendServer) Invoke(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Invoke not implemented")
}

func (UnimplementedBackendServer) Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

func (UnimplementedBackendServer) mustEmbedUnimplementedBackendServer() {}

// RegisterBackendServer registers srv on s.
func RegisterBackendServer(s grpc.ServiceRegistrar, srv BackendServer) {
	s.RegisterService(&Backend_ServiceDesc, srv)
}

func _Backend_Invoke_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) { //nolint:revive // grpc naming
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BackendServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Backend_Invoke_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BackendServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Backend_Subscribe_Handler(srv any, stream grpc.ServerStream) error { //nolint:revive // grpc naming
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(BackendServer).Subscribe(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Backend_ServiceDesc is the grpc.ServiceDesc for the Backend service.
var Backend_ServiceDesc = grpc.ServiceDesc{ //nolint:revive,stylecheck // grpc naming
	ServiceName: "flashback.v1.Backend",
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    _Backend_Invoke_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       _Backend_Subscribe_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "flashback/v1/backend.proto",
}
