package middleware

import (
	"context"
	"net/http"

	"go-auth-server/internal/authn"
	"go-auth-server/internal/event"
	"go-auth-server/internal/metrics"
	"go-auth-server/internal/model"
	"go-auth-server/internal/throttle"
	"go-auth-server/pkg/apierror"
)

type throttleChecker interface {
	Check(ctx context.Context, tiers []throttle.Tier, principal model.Principal, ip string) (throttle.Decision, error)
}

type ThrottleMiddleware struct {
	checker throttleChecker
	tiers   []throttle.Tier
	events  event.Publisher
	metrics *metrics.Metrics
}

func NewThrottleMiddleware(checker throttleChecker, tiers []throttle.Tier, events event.Publisher, m *metrics.Metrics) *ThrottleMiddleware {
	if events == nil {
		events = event.Nop
	}
	return &ThrottleMiddleware{checker: checker, tiers: tiers, events: events, metrics: m}
}

// Handler must run after Authenticate so principal-keyed tiers see the caller.
func (m *ThrottleMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := authn.PrincipalFromContext(r.Context())
		ip := clientIP(r)

		decision, err := m.checker.Check(r.Context(), m.tiers, principal, ip)
		if err != nil {
			writeError(w, r, apierror.ServerError(err))
			return
		}
		if !decision.Allowed {
			if m.metrics != nil {
				m.metrics.ThrottledTotal.WithLabelValues(decision.Scope).Inc()
			}
			actor := ip
			if principal != nil {
				actor = principal.PrincipalID()
			}
			m.events.Publish(event.New(event.TypeRequestThrottled, actor, map[string]any{
				"scope": decision.Scope,
				"path":  r.URL.Path,
			}))
			writeError(w, r, apierror.RateLimited(throttle.RetryAfterSeconds(decision.RetryAfter)))
			return
		}

		next.ServeHTTP(w, r)
	})
}
