package middleware

import (
	"context"
	"log"

	"golang.org/x/time/rate"
)

// LogThrottleMiddleware caps how often the broker logs a "dropping malformed
// frame" line. Every undecodable frame is still dropped exactly as before;
// under a storm of corrupt input (a misbehaving client, a port scanner, a
// bug on the wire) this throttles only the log line about it, not message
// delivery.
//
// limiter must be constructed once outside the returned handler (in the
// middleware factory call) and shared across every event — a fresh limiter
// per event would never throttle anything.
func LogThrottleMiddleware(limiter *rate.Limiter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, evt *InboundEvent) {
			next(ctx, evt)
			if evt.DecodeErr != nil && limiter.Allow() {
				log.Printf("broker: dropping malformed inbound frame: %v", evt.DecodeErr)
			}
		}
	}
}
