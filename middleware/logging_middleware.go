package middleware

import (
	"context"
	"log"
)

// LoggingMiddleware records each successfully decoded inbound message when
// verbose is true. Decode failures are deliberately left alone here — those
// are LogThrottleMiddleware's job, since an attacker or a flaky client can
// drive decode failures at a much higher rate than legitimate traffic ever
// will.
func LoggingMiddleware(verbose bool) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, evt *InboundEvent) {
			next(ctx, evt)
			if verbose && evt.DecodeErr == nil {
				log.Printf("broker: handled message: %s", evt.Msg.String())
			}
		}
	}
}
