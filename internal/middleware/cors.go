package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORS returns the CORS handler for the configured origins. An empty list
// allows any origin.
func NewCORS(allowedOrigins []string) *cors.Cors {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	})
}

// CORSMiddleware adapts NewCORS to the func(http.Handler) http.Handler shape.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return NewCORS(allowedOrigins).Handler
}
