package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the fixed request headers plus extraHeaders, such as the configured HMAC
// timestamp and nonce header names.
func CORS(origins []string, extraHeaders ...string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowed := append([]string{"Authorization", "Content-Type", "X-Request-ID"}, extraHeaders...)

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   allowed,
		ExposedHeaders:   []string{"WWW-Authenticate", "Retry-After", "X-Request-ID"},
		MaxAge:           3600,
		AllowCredentials: false,
	})

	return handler.Handler
}
