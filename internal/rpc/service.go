// Package rpc exposes the directory over gRPC on a Unix socket.
//
// Messages are google.protobuf.Struct values carrying the same JSON shapes
// the HTTP API serves, so the service needs no generated code: the service
// descriptor below is declared by hand.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "fleetdash.v1.Directory"

	listPageMethod = "/" + ServiceName + "/ListPage"
	getMethod      = "/" + ServiceName + "/Get"
)

// DirectoryServer is the server API for the Directory service.
//
// ListPage takes {kind, search, page, perPage, status, owner} and returns the
// list envelope. Get takes {kind, id} and returns {data: record}.
type DirectoryServer interface {
	ListPage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDirectoryServer registers srv with s.
func RegisterDirectoryServer(s grpc.ServiceRegistrar, srv DirectoryServer) {
	s.RegisterService(&directoryServiceDesc, srv)
}

var directoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPage", Handler: listPageHandler},
		{MethodName: "Get", Handler: getHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fleetdash/v1/directory.proto",
}

func listPageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DirectoryServer).ListPage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listPageMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DirectoryServer).ListPage(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DirectoryServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DirectoryServer).Get(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
