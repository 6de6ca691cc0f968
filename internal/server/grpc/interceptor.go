package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/server/auth"
	"github.com/dmitrijs2005/applock/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const principalKey ctxKey = "principal"

// publicMethods need no access token.
var publicMethods = map[string]struct{}{
	wire.FullMethod(wire.MethodPing):           {},
	wire.FullMethod(wire.MethodRefreshSession): {},
}

// accessTokenInterceptor validates the access token and requires its
// subject to match the principal the call acts on.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := publicMethods[info.FullMethod]; ok {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	accessToken := first(md, common.AccessTokenHeaderName)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	subject, err := auth.PrincipalFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	if principal := first(md, common.PrincipalHeaderName); principal != subject {
		s.logger.Warn(ctx, "principal mismatch", "subject", subject, "principal", principal, "method", info.FullMethod)
		return nil, status.Error(codes.PermissionDenied, "principal mismatch")
	}

	return handler(context.WithValue(ctx, principalKey, subject), req)
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// principalFromContext returns the principal authenticated by the interceptor.
func principalFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey).(string)
	return p, ok && p != ""
}
