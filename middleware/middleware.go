// Package middleware wraps packet dispatch with cross-cutting behavior.
//
// Middlewares compose like an onion: Chain(A, B, C)(h) runs A's before-logic,
// then B's, then C's, then h, and unwinds in reverse.
package middleware

import (
	"context"

	"mini-rdp/message"
)

// HandlerFunc dispatches one request packet and returns the reply packet, or
// nil when no reply should be sent.
type HandlerFunc func(ctx context.Context, req message.Packet) message.Packet

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, outermost first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type oneShotKey struct{}

// WithOneShot marks ctx as belonging to a request that can run only once,
// such as a bulk request whose payload is read off the stream.
func WithOneShot(ctx context.Context) context.Context {
	return context.WithValue(ctx, oneShotKey{}, true)
}

// OneShot reports whether ctx was marked by WithOneShot.
func OneShot(ctx context.Context) bool {
	v, _ := ctx.Value(oneShotKey{}).(bool)
	return v
}
