package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gourl/shortcode/pkg/logger"
)

// Recover returns a middleware that turns a handler panic into a 500
// response and logs the stack.
func Recover(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithContext(r.Context()).Error("panic serving request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog returns a middleware that logs one line per request.
// Health probes and metric scrapes are logged at debug level.
func AccessLog(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			reqLog := log.WithContext(r.Context())
			switch r.URL.Path {
			case "/health", "/ready", "/metrics":
				reqLog.Debug("request", kv...)
			default:
				reqLog.Info("request", kv...)
			}
		})
	}
}
