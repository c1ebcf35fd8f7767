package middleware

import (
	"net/http"

	"github.com/shelfmart/authcore/internal/httputil"
)

// DefaultMaxBodyBytes applies when RequestSizeLimit gets a non-positive limit.
const DefaultMaxBodyBytes = 1 << 20

// RequestSizeLimit caps request bodies at maxBytes. A declared
// Content-Length over the cap is answered with 413 before the handler runs;
// chunked bodies are cut off by http.MaxBytesReader, which
// httputil.DecodeJSON maps to the same 413.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
