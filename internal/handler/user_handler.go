package handler

import (
	"context"
	"net/http"

	"go-auth-server/internal/authn"
	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

type userService interface {
	CreateUser(ctx context.Context, req model.CreateUserRequest, staff bool) (*model.User, error)
}

type UserHandler struct {
	service userService
}

func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

// Create registers a user. Accounts created through the API are never staff.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateUserRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), payload, false)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user)
}

// Me describes the authenticated principal, user or client.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := authn.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, apierror.AuthenticationFailed("authentication required"))
		return
	}

	writeSuccess(w, http.StatusOK, model.NewAuthUser(principal))
}

// UserInfo returns the OpenID Connect claims released by the access token's scope.
func (h *UserHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	res := authn.FromContext(r.Context())
	if res == nil {
		writeError(w, apierror.AuthenticationFailed("authentication required"))
		return
	}

	user, ok := res.Principal.(*model.User)
	if !ok {
		writeError(w, apierror.PermissionDenied("userinfo requires a token issued to a user"))
		return
	}

	scope := ""
	if res.Token != nil {
		scope = res.Token.Scope
	}
	writeJSON(w, http.StatusOK, user.Claims(scope))
}
