package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIP resolves the caller address once per request. Proxy headers are ignored unless trustedProxies reverse proxies sit in front
// of the server; the address is then read trustedProxies hops from the right of
// X-Forwarded-For, so entries a caller prepends itself are never used.
func ClientIP(trustedProxies int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustedProxies)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

// clientIP returns the address stored by ClientIP, else the connection's peer address.
func clientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return remoteHost(r)
}

func resolveClientIP(r *http.Request, trustedProxies int) string {
	if trustedProxies <= 0 {
		return remoteHost(r)
	}

	if forwarded := strings.Join(r.Header.Values("X-Forwarded-For"), ","); strings.TrimSpace(forwarded) != "" {
		hops := strings.Split(forwarded, ",")
		idx := len(hops) - trustedProxies
		if idx < 0 {
			idx = 0
		}
		if hop := strings.TrimSpace(hops[idx]); hop != "" {
			return hop
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
}
