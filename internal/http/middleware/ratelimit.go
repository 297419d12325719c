package middleware

import (
	"net"
	"net/http"
	"strconv"

	"github.com/wolfman30/salesfusion/internal/validation"
)

// RateLimit rejects clients that exceed limiter with 429. Clients are keyed
// by X-Real-Ip when chi's RealIP middleware set it, else by remote host.
func RateLimit(limiter *validation.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.IsAllowed(ip) {
				w.Header().Set("Retry-After", "60")
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemainingRequests(ip)))
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
