package middleware

import (
	"net/http"
)

// DefaultMaxRequestSize caps request bodies at 10MB unless overridden
const DefaultMaxRequestSize = 10 * 1024 * 1024

// RequestSizeLimit returns a middleware that bounds request body size.
// Oversized bodies make the handlers' body reads fail, which surfaces
// as a 400 from the route layer.
func RequestSizeLimit(maxSize int64) func(http.Handler) http.Handler {
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}
