package middleware

import (
	"context"
	"time"

	"mini-rdp/message"
)

// TimeOutMiddleware replies with a timeout error when the handler takes
// longer than timeout. The handler's context is cancelled at that point.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Packet) message.Packet {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan message.Packet, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return message.NewErrorPacket(req.To(), message.CodeTimeout, "request timed out")
			}
		}
	}
}
