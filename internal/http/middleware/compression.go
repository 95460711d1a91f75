package middleware

import (
	"net/http"
)

// SkipCompressionFor wraps a compression middleware so the listed paths are
// served uncompressed. Raw audio streams must reach the client byte for
// byte as they are flushed.
func SkipCompressionFor(compressionHandler func(http.Handler) http.Handler, paths ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(paths))
	for _, p := range paths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			compressedHandler.ServeHTTP(w, r)
		})
	}
}
