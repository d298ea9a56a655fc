// Package middleware contains the HTTP middleware of the ops server.
package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/gourl/shortcode/pkg/logger"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain composes mws into a single Middleware. The first one is outermost:
// it sees the request first and the response last.
func Chain(mws ...Middleware) Middleware {
	mws = slices.Clone(mws)
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	return logger.RequestID(ctx)
}
