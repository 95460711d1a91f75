package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins lists permitted origins; "*" permits any.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// ExposedHeaders are readable by browser players, e.g. the stream format.
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// Headers describing the PCM stream. Browser players read them to configure
// their decoders.
const (
	HeaderSessionID       = "X-Session-ID"
	HeaderAudioEncoding   = "X-Audio-Encoding"
	HeaderAudioSampleRate = "X-Audio-Sample-Rate"
	HeaderAudioChannels   = "X-Audio-Channels"
)

// DefaultCORSConfig allows any origin to read the stream and status endpoints.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{
			RequestIDHeader,
			HeaderSessionID,
			HeaderAudioEncoding,
			HeaderAudioSampleRate,
			HeaderAudioChannels,
		},
		MaxAge: 86400,
	}
}

// CORS returns a CORS middleware allowing origins, or the defaults when
// origins is empty.
func CORS(origins ...string) func(http.Handler) http.Handler {
	config := DefaultCORSConfig()
	if len(origins) > 0 {
		config.AllowedOrigins = origins
	}
	return CORSWithConfig(config)
}

// CORSWithConfig returns a CORS middleware with custom configuration.
// Preflight requests are answered with 204 and never reach next.
func CORSWithConfig(config CORSConfig) func(http.Handler) http.Handler {
	wildcard := slices.Contains(config.AllowedOrigins, "*")
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	exposed := strings.Join(config.ExposedHeaders, ", ")

	allowOrigin := func(origin string) string {
		switch {
		case origin == "":
			return ""
		case wildcard && !config.AllowCredentials:
			return "*"
		case wildcard || slices.Contains(config.AllowedOrigins, origin):
			return origin
		default:
			return ""
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if allowed := allowOrigin(r.Header.Get("Origin")); allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if allowed != "*" {
					h.Add("Vary", "Origin")
				}
				if config.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
