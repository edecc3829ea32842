package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-rdp/message"
)

// RateLimitMiddleware admits r requests per second with the given burst,
// using a token bucket shared by every connection of the server.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Packet) message.Packet {
			if !limiter.Allow() {
				return message.NewErrorPacket(req.To(), message.CodeRateLimited, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
