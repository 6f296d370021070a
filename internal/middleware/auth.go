package middleware

import (
	"net/http"
	"strings"

	"go-auth-server/internal/authn"
	"go-auth-server/internal/metrics"
	"go-auth-server/internal/permission"
	"go-auth-server/pkg/apierror"
)

type authenticator interface {
	Authenticate(r *http.Request) (*authn.Result, error)
	Challenge() string
}

type AuthMiddleware struct {
	dispatcher authenticator
	metrics    *metrics.Metrics
}

func NewAuthMiddleware(dispatcher authenticator, m *metrics.Metrics) *AuthMiddleware {
	return &AuthMiddleware{dispatcher: dispatcher, metrics: m}
}

// Authenticate resolves the principal, if any, and stores it in the request context.
// Credentials that are present but invalid end the request.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := m.dispatcher.Authenticate(r)
		if err != nil {
			apiErr := apierror.From(err)
			if m.metrics != nil && apiErr.HTTPStatus == http.StatusUnauthorized {
				m.metrics.AuthFailures.WithLabelValues(schemeOf(apiErr), apiErr.Code).Inc()
			}
			writeError(w, r, apiErr)
			return
		}

		if res != nil {
			r = r.WithContext(authn.NewContext(r.Context(), res))
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects anonymous callers with 401 and authenticated ones with 403.
func (m *AuthMiddleware) RequirePermission(perm permission.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := authn.PrincipalFromContext(r.Context())
			if perm.Allow(principal, r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if principal == nil {
				apiErr := apierror.AuthenticationFailed(perm.Message())
				apiErr.Challenge = m.dispatcher.Challenge()
				writeError(w, r, apiErr)
				return
			}
			writeError(w, r, apierror.PermissionDenied(perm.Message()))
		})
	}
}

func schemeOf(e *apierror.APIError) string {
	if scheme, _, found := strings.Cut(e.Challenge, " "); found {
		return scheme
	}
	return "unknown"
}
