// Package requesttime pins one "now" per HTTP request. All operations
// within a single request share the same timestamp, so quota window
// staleness, audit timestamps, and reset-time reporting agree with each
// other for the lifetime of the request.
package requesttime

import (
	"net/http"
	"time"

	"chalk/pkg/requestcontext"
)

// Middleware captures the current UTC time at the start of the request
// and stores it in the context via requestcontext.WithTime. Services read
// it back with requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
