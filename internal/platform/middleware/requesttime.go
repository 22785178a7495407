package middleware

import (
	"net/http"
	"time"

	"paflow/pkg/requestcontext"
)

// RequestTime captures the current time at the start of the request so every
// operation within it observes the same "now". Signature dates, history
// timestamps and expiration math for one transition all derive from this value.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
