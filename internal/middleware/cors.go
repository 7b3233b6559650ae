package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig is the permissive cross-origin policy every response carries
type CORSConfig struct {
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// DefaultCORS allows any origin with the methods and headers the API uses
var DefaultCORS = CORSConfig{
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
	AllowedHeaders: []string{"Content-Type", "Authorization", TokenHeader},
	MaxAge:         86400,
}

// CORS sets Access-Control-Allow-Origin: * on every response and answers every OPTIONS
// request with 200 and an empty body, with or without an Origin header.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
