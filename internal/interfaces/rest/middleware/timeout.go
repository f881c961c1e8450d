package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds each request through its context. An expired deadline
// surfaces from the storage layer as an error, which the handler maps to
// a 503 body; the intake transaction is rolled back by the database.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
