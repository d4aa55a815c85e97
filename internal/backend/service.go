package backend

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// backendServer is the server-side counterpart of the methods in serviceDesc.
type backendServer interface {
	SubmitAC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListSubmissions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetSubmission(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListCustomerContacts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Whoami(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv backendServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(backendServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(backendServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*backendServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitAC",
			Handler:    unaryHandler(methodSubmitAC, backendServer.SubmitAC),
		},
		{
			MethodName: "ListSubmissions",
			Handler:    unaryHandler(methodListSubmissions, backendServer.ListSubmissions),
		},
		{
			MethodName: "GetSubmission",
			Handler:    unaryHandler(methodGetSubmission, backendServer.GetSubmission),
		},
		{
			MethodName: "ListCustomerContacts",
			Handler:    unaryHandler(methodListCustomerContacts, backendServer.ListCustomerContacts),
		},
		{
			MethodName: "Whoami",
			Handler:    unaryHandler(methodWhoami, backendServer.Whoami),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "acbuy/v1/backend.proto",
}
