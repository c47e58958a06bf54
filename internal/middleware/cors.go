package middleware

import (
	"net/http"
	"strconv"
	"time"
)

const corsMaxAge = 10 * time.Minute

// CORS allows credentialed requests from the listed origins. "*" allows any
// origin, echoed back because credentials rule out a literal wildcard.
// Preflight requests end here with 204.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := false
	allow := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAny = true
			continue
		}
		allow[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); origin != "" {
				_, ok := allow[origin]
				if ok || allowAny {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Locale, X-Request-ID, Idempotency-Key")
					h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After, Location, Idempotent-Replayed")
					h.Set("Access-Control-Max-Age", strconv.Itoa(int(corsMaxAge/time.Second)))
				}
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
