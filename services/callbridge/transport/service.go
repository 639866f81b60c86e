// Package transport exposes the bridge over gRPC. Commands travel as
// method-channel style messages: a method name plus an argument map,
// carried in protobuf Struct values.
package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "callbridge.v1.Bridge"

	InvokeMethod = "/" + ServiceName + "/Invoke"
	EventsMethod = "/" + ServiceName + "/Events"
)

// BridgeServer is the server side of the Bridge service.
type BridgeServer interface {
	// Invoke runs one command: {method, args} -> {result}
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// Events streams outbound events: {filter} -> stream {event, subject, body}
	Events(req *structpb.Struct, stream grpc.ServerStream) error
}

// RegisterBridgeServer registers srv on s.
func RegisterBridgeServer(s grpc.ServiceRegistrar, srv BridgeServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "callbridge/v1/bridge.proto",
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BridgeServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InvokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BridgeServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BridgeServer).Events(in, stream)
}
