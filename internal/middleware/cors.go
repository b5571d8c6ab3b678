package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"
)

// CORS разрешает запросы с перечисленных источников.
// Пустой список или "*" разрешает любой источник, но без передачи учётных данных.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Encoding", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         600,
	}

	if len(origins) == 0 || slices.Contains(origins, "*") {
		opts.AllowedOrigins = []string{"*"}
	} else {
		for _, o := range origins {
			opts.AllowedOrigins = append(opts.AllowedOrigins, strings.TrimRight(strings.TrimSpace(o), "/"))
		}
		opts.AllowCredentials = true
	}

	return cors.Handler(opts)
}
