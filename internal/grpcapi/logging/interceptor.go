package logging

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor logs every request/response pair. Request and
// response values are logged with slog.Any rather than cast to proto.Message,
// since not every handler registered on this server exchanges protobuf
// messages (only the standard health service does).
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		logger.InfoContext(ctx, "gRPC request received", slog.String("method", info.FullMethod))
		resp, err := handler(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "request failed", slog.String("method", info.FullMethod), slog.Any("error", status.Convert(err).Proto()))
		} else {
			logger.InfoContext(ctx, "gRPC response sent", slog.String("method", info.FullMethod))
		}
		return resp, err
	}
}
