package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/alphacut/alphacut-backend/pkg/config"
)

var defaultCORSOrigins = []string{
	"http://localhost:5173", // vite dev server
}

// CORS returns middleware that applies the API's allowed origin policy.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, "X-Requested-With", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func allowedOrigins(configured []string) []string {
	out := make([]string, 0, len(configured))
	for _, origin := range configured {
		if o := strings.TrimSpace(origin); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return defaultCORSOrigins
	}
	return out
}
