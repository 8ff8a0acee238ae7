package tracking

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tracker.v1.TrackingService"

// Method names.
const (
	MethodStartSession     = "StartSession"
	MethodStopSession      = "StopSession"
	MethodReportPosition   = "ReportPosition"
	MethodTriggerEmergency = "TriggerEmergency"
	MethodGetSessionStatus = "GetSessionStatus"
)

// TrackingServiceServer is the server API of tracker.v1.TrackingService.
type TrackingServiceServer interface {
	StartSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StopSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReportPosition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TriggerEmergency(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSessionStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// FullMethod returns the gRPC path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

//nolint:gochecknoglobals // Service descriptors are package-level in generated code too.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrackingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodStartSession, Handler: unaryHandler(MethodStartSession, TrackingServiceServer.StartSession)},
		{MethodName: MethodStopSession, Handler: unaryHandler(MethodStopSession, TrackingServiceServer.StopSession)},
		{MethodName: MethodReportPosition, Handler: unaryHandler(MethodReportPosition, TrackingServiceServer.ReportPosition)},
		{MethodName: MethodTriggerEmergency, Handler: unaryHandler(MethodTriggerEmergency, TrackingServiceServer.TriggerEmergency)},
		{MethodName: MethodGetSessionStatus, Handler: unaryHandler(MethodGetSessionStatus, TrackingServiceServer.GetSessionStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tracker/v1/tracking.proto",
}

// RegisterTrackingServiceServer registers srv on the gRPC server.
func RegisterTrackingServiceServer(s grpc.ServiceRegistrar, srv TrackingServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

type unaryMethod func(TrackingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(TrackingServiceServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}

		handler := func(ctx context.Context, req any) (any, error) {
			in, _ := req.(*structpb.Struct)

			return call(server, ctx, in)
		}

		return interceptor(ctx, in, info, handler)
	}
}

// TrackingServiceClient is the client API of tracker.v1.TrackingService.
type TrackingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTrackingServiceClient creates a client over the connection.
func NewTrackingServiceClient(cc grpc.ClientConnInterface) *TrackingServiceClient {
	return &TrackingServiceClient{cc: cc}
}

// Invoke calls a unary method with Struct messages.
func (c *TrackingServiceClient) Invoke(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
