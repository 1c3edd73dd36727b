// Package middleware implements the onion-model middleware chain for the
// broker's inbound pipeline: the one event shape the broker ever dispatches,
// a decoded (or failed-to-decode) inbound frame.
//
// Execution order:
//
//	Chain(A, B)(handler)  →  A(B(handler))
//	Request:   A.before → B.before → handler
//	Response:  handler → B.after → A.after
package middleware

import (
	"context"

	"mezzenger/message"
)

// InboundEvent describes one frame received on the broker's inbound
// endpoint. Msg and DecodeErr are mutually informative: a successful decode
// leaves DecodeErr nil and Msg populated; a failed decode leaves Msg at its
// zero value.
type InboundEvent struct {
	Msg       message.Message
	DecodeErr error
	// Raw is the original encoded frame bytes, preserved so the business
	// handler can republish exactly the bytes it received without a
	// redundant re-encode.
	Raw []byte
}

// HandlerFunc processes one InboundEvent. It returns nothing: the inbound
// pipeline communicates outcomes via side effects (writing a reply, mutating
// retention, publishing), not via a response value threaded back up the
// chain.
type HandlerFunc func(ctx context.Context, evt *InboundEvent)

// Middleware wraps a HandlerFunc to add cross-cutting behavior around it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one in the list is the outermost
// layer — executed first as the event comes in, last as control returns.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
