package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"paflow/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags each request with an ID, honoring an inbound X-Request-ID
// from a trusted proxy and generating one otherwise. The ID is echoed in the
// response and stored in context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
