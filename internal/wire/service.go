// Package wire describes the SecurityRecords gRPC service shared by the
// server and the device client.
//
// Messages are plain Go structs carried as google.protobuf.Struct values, so
// the service needs no generated code: the ServiceDesc below is registered
// like a generated one and clients call it through Invoke.
package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "applock.security.v1.SecurityRecords"

const (
	MethodPing             = "Ping"
	MethodGetCredential    = "GetCredential"
	MethodUpsertCredential = "UpsertCredential"
	MethodGetLockRecord    = "GetLockRecord"
	MethodUpsertLockRecord = "UpsertLockRecord"
	MethodRefreshSession   = "RefreshSession"
)

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// SecurityRecordsServer is implemented by the server. Not-found results are
// reported with codes.NotFound.
type SecurityRecordsServer interface {
	Ping(ctx context.Context, req *Empty) (*Empty, error)
	GetCredential(ctx context.Context, req *PrincipalRequest) (*Credential, error)
	UpsertCredential(ctx context.Context, req *Credential) (*Empty, error)
	GetLockRecord(ctx context.Context, req *PrincipalRequest) (*LockRecord, error)
	UpsertLockRecord(ctx context.Context, req *LockRecord) (*Empty, error)
	RefreshSession(ctx context.Context, req *RefreshRequest) (*Session, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SecurityRecordsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, SecurityRecordsServer.Ping),
		unary(MethodGetCredential, SecurityRecordsServer.GetCredential),
		unary(MethodUpsertCredential, SecurityRecordsServer.UpsertCredential),
		unary(MethodGetLockRecord, SecurityRecordsServer.GetLockRecord),
		unary(MethodUpsertLockRecord, SecurityRecordsServer.UpsertLockRecord),
		unary(MethodRefreshSession, SecurityRecordsServer.RefreshSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "applock/security/v1/records",
}

func RegisterSecurityRecordsServer(s grpc.ServiceRegistrar, srv SecurityRecordsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(SecurityRecordsServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				msg := new(Req)
				if err := Decode(req.(*structpb.Struct), msg); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				resp, err := call(srv.(SecurityRecordsServer), ctx, msg)
				if err != nil {
					return nil, err
				}
				out, err := Encode(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}

			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Invoke calls method on cc, encoding req and decoding the reply.
func Invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req *Req, opts ...grpc.CallOption) (*Resp, error) {
	in, err := Encode(req)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}

	resp := new(Resp)
	if err := Decode(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
