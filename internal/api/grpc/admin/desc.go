package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "presence.admin.v1.AdminService"

	// SetDeviceModeMethod is the full method name of SetDeviceMode.
	SetDeviceModeMethod = "/" + ServiceName + "/SetDeviceMode"
	// ConfigureNetworkMethod is the full method name of ConfigureNetwork.
	ConfigureNetworkMethod = "/" + ServiceName + "/ConfigureNetwork"
	// ListNetworksMethod is the full method name of ListNetworks.
	ListNetworksMethod = "/" + ServiceName + "/ListNetworks"
	// ListDevicesMethod is the full method name of ListDevices.
	ListDevicesMethod = "/" + ServiceName + "/ListDevices"
)

// AdminServer is the server API of the admin service. Messages are
// google.protobuf.Struct values holding the views of this package.
type AdminServer interface {
	SetDeviceMode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfigureNetwork(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListNetworks(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ListDevices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the admin service for grpc.Server.
//
//nolint:gochecknoglobals // Service descriptors are package level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetDeviceMode", Handler: setDeviceModeHandler},
		{MethodName: "ConfigureNetwork", Handler: configureNetworkHandler},
		{MethodName: "ListNetworks", Handler: listNetworksHandler},
		{MethodName: "ListDevices", Handler: listDevicesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "presence/admin/v1/admin.proto",
}

// RegisterAdminServer registers srv on the provided registrar.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func setDeviceModeHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return structHandler(srv, ctx, dec, interceptor, SetDeviceModeMethod, AdminServer.SetDeviceMode)
}

func configureNetworkHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return structHandler(srv, ctx, dec, interceptor, ConfigureNetworkMethod, AdminServer.ConfigureNetwork)
}

func listDevicesHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return structHandler(srv, ctx, dec, interceptor, ListDevicesMethod, AdminServer.ListDevices)
}

func listNetworksHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(AdminServer).ListNetworks(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ListNetworksMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).ListNetworks(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}

// structHandler decodes a Struct request and dispatches it to call,
// honouring the optional interceptor like generated handlers do.
func structHandler(
	srv any,
	ctx context.Context, //nolint:revive // Mirrors the grpc.MethodHandler argument order.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
	fullMethod string,
	call func(AdminServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return call(srv.(AdminServer), ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: fullMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return call(srv.(AdminServer), ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}
