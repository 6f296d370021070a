package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-auth-server/internal/metrics"
	"go-auth-server/pkg/apierror"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware is a per-process token bucket per client IP. It guards the
// credential endpoints in front of the shared sliding-window throttle.
type RateLimitMiddleware struct {
	rpm     int
	metrics *metrics.Metrics
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func NewRateLimitMiddleware(rpm int, m *metrics.Metrics) *RateLimitMiddleware {
	if rpm <= 0 {
		rpm = 30
	}

	return &RateLimitMiddleware{
		rpm:     rpm,
		metrics: m,
		clients: map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := m.getLimiter(clientIP(r))

		if !limiter.Allow() {
			if m.metrics != nil {
				m.metrics.LocalRateLimited.Inc()
			}
			retryAfter := int(time.Minute / time.Duration(m.rpm) / time.Second)
			writeError(w, r, apierror.RateLimited(retryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cl, exists := m.clients[clientIP]; exists {
		cl.lastSeen = time.Now()
		m.gcLocked()
		return cl.limiter
	}

	created := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.rpm)), m.rpm),
		lastSeen: time.Now(),
	}
	m.clients[clientIP] = created
	m.gcLocked()

	return created.limiter
}

func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, cl := range m.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}
