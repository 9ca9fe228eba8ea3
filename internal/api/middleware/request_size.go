package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize covers single-URL requests.
	DefaultMaxBodySize int64 = 64 << 10

	// BatchMaxBodySize covers import-batch bodies carrying many URLs.
	BatchMaxBodySize int64 = 2 << 20
)

// RequestSize limits the size of incoming request bodies. Handlers see a
// *http.MaxBytesError from the body reader once the limit is crossed.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
