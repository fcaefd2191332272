package middleware

import (
	"net"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type keyLimiter interface {
	Allow(key string) bool
}

// RateLimit enforces l per client IP. trustedHops is the number of reverse
// proxies in front of the service; see clientIP.
func RateLimit(l keyLimiter, trustedHops int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r, trustedHops)) {
				writeJSONError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address the outermost trusted proxy saw. Each proxy
// appends to X-Forwarded-For, so with trustedHops proxies the client sits
// trustedHops entries from the right; anything further left is client-supplied.
// With no trusted proxies, or a header shorter than the proxy chain, the
// connection address is used.
func clientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		if xff := strings.Join(r.Header.Values("X-Forwarded-For"), ","); xff != "" {
			hops := strings.Split(xff, ",")
			if len(hops) >= trustedHops {
				if ip := strings.TrimSpace(hops[len(hops)-trustedHops]); ip != "" {
					return ip
				}
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}
