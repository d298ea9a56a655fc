package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/gourl/shortcode/pkg/logger"
)

// HeaderXRequestID carries the request ID on requests and responses.
const HeaderXRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// requestIDPattern accepts UUIDs, trace IDs and similar opaque tokens.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// RequestID assigns every request an ID. A well-formed inbound X-Request-ID
// is reused; otherwise a UUIDv4 is generated. The ID is echoed in the
// response and stored in the request context, where Logger.WithContext
// attaches it to every log line written for the request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := inboundRequestID(r)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderXRequestID, id)
			next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
		})
	}
}

// inboundRequestID returns the caller's request ID, or "" if it is missing
// or malformed.
func inboundRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(HeaderXRequestID))
	if len(id) > maxRequestIDLength || !requestIDPattern.MatchString(id) {
		return ""
	}
	return id
}
