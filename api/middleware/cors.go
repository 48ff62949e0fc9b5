package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets the storefront and the admin console call the API from their own
// origins and read the replay and throttling headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, HQPassHeader, RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, ReplayHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
