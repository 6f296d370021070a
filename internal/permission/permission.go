// Package permission holds the predicates that gate a handler once the caller has been
// authenticated and throttled.
package permission

import (
	"net/http"

	"go-auth-server/internal/model"
)

// Permission decides whether principal may issue a request with method. principal is nil
// for anonymous requests.
type Permission interface {
	Allow(principal model.Principal, method string) bool
	Message() string
}

func isSafe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

type allowAny struct{}

func (allowAny) Allow(model.Principal, string) bool { return true }

func (allowAny) Message() string { return "" }

type isAuthenticated struct{}

func (isAuthenticated) Allow(p model.Principal, _ string) bool { return p != nil }

func (isAuthenticated) Message() string { return "authentication credentials were not provided" }

type isAuthenticatedOrReadOnly struct{}

func (isAuthenticatedOrReadOnly) Allow(p model.Principal, method string) bool {
	return p != nil || isSafe(method)
}

func (isAuthenticatedOrReadOnly) Message() string {
	return "authenticated callers only; anonymous callers may only read"
}

type isAdminUser struct{}

func (isAdminUser) Allow(p model.Principal, _ string) bool { return p != nil && p.IsStaff() }

func (isAdminUser) Message() string { return "staff users only" }

var (
	AllowAny                  Permission = allowAny{}
	IsAuthenticated           Permission = isAuthenticated{}
	IsAuthenticatedOrReadOnly Permission = isAuthenticatedOrReadOnly{}
	IsAdminUser               Permission = isAdminUser{}
)
