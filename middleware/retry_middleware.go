package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-rdp/message"
)

// retryable lists the error codes worth another attempt.
var retryable = map[string]bool{
	message.CodeTimeout:     true,
	message.CodeRateLimited: true,
}

// RetryMiddleware re-runs the handler up to maxRetries times while it replies
// with a retryable error code, backing off exponentially from baseDelay.
// Requests marked with WithOneShot run once.
func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Packet) message.Packet {
			reply := next(ctx, req)
			if OneShot(ctx) {
				return reply
			}
			for i := 0; i < maxRetries; i++ {
				if reply == nil {
					return nil
				}
				code, _ := reply[message.KeyError].(string)
				if !retryable[code] {
					return reply
				}
				logger.Info("retrying request",
					zap.Int("attempt", i+1),
					zap.String("actor", req.To()),
					zap.String("type", req.Type()),
					zap.String("code", code))
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return reply
				}
				reply = next(ctx, req)
			}
			return reply
		}
	}
}
