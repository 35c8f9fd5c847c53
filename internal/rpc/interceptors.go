package rpc

import (
	"context"
	"strings"
	"time"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type callerKey struct{}

func callerFrom(ctx context.Context) ledger.Principal {
	p, _ := ctx.Value(callerKey{}).(ledger.Principal)
	return p
}

// AuthInterceptor verifies "authorization: Bearer <token>" metadata. A valid
// token attaches its principal to the context; mutating methods without one
// fail with Unauthenticated.
func (s *Server) AuthInterceptor() grpc.UnaryServerInterceptor {
	mutating := mutatingMethods()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.Server != s {
			return handler(ctx, req)
		}

		raw := bearerToken(ctx)
		if raw == "" {
			if mutating[info.FullMethod] {
				return nil, status.Error(codes.Unauthenticated, "bearer token required")
			}
			return handler(ctx, req)
		}
		if s.tokens == nil {
			return nil, status.Error(codes.Unauthenticated, "caller authentication not configured")
		}
		claims, err := s.tokens.Verify(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token: "+err.Error())
		}
		return handler(context.WithValue(ctx, callerKey{}, claims.Caller()), req)
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		if strings.HasPrefix(v, "Bearer ") {
			return strings.TrimPrefix(v, "Bearer ")
		}
	}
	return ""
}

// LoggingInterceptor returns a gRPC unary server interceptor that logs each call.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
