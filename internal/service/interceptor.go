package service

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/uwscope/scope-web-sub000/internal/logger"
)

// UnaryLogging logs every unary call with its status code and latency.
func UnaryLogging(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		kv := []interface{}{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		if err != nil {
			log.Warn("grpc call failed", append(kv, "error", err)...)
		} else {
			log.Debug("grpc call", kv...)
		}
		return resp, err
	}
}
