package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

const rateLimitKeys = 4096

// RateLimit allows limit requests per window for each signed-in user, or per
// client IP for anonymous requests. Buckets refill continuously.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	every := per / time.Duration(limit)
	retryAfter := strconv.Itoa(int(math.Ceil(every.Seconds())))
	limiters, _ := lru.New(rateLimitKeys)
	var mu sync.Mutex

	get := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
		l := rate.NewLimiter(rate.Every(every), limit)
		limiters.Add(key, l)
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIPForRateLimit(r)
			if uid := UserIDFromContext(r.Context()); uid != "" {
				key = "user:" + uid
			}
			if !get(key).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": "rate_limited", "message": "too many requests", "retryable": true},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
