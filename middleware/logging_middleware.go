package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-rdp/message"
)

// LoggingMiddleware logs every dispatched packet with its duration, and the
// error code of failed replies at warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Packet) message.Packet {
			start := time.Now()
			reply := next(ctx, req)
			fields := []zap.Field{
				zap.String("actor", req.To()),
				zap.String("type", req.Type()),
				zap.Duration("duration", time.Since(start)),
			}
			if reply == nil {
				logger.Debug("dispatched one-way packet", fields...)
				return nil
			}
			if code, _ := reply[message.KeyError].(string); code != "" {
				logger.Warn("request failed", append(fields,
					zap.String("code", code),
					zap.Any("message", reply[message.KeyMessage]))...)
				return reply
			}
			logger.Debug("request handled", fields...)
			return reply
		}
	}
}
