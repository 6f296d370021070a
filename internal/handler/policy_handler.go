package handler

import (
	"context"
	"net/http"

	"go-auth-server/internal/model"
)

type policyService interface {
	ActivePolicy(ctx context.Context) (*model.PasswordPolicy, error)
	CreatePolicy(ctx context.Context, p model.PasswordPolicy, activate bool) (*model.PasswordPolicy, error)
}

type PolicyHandler struct {
	service policyService
}

func NewPolicyHandler(service policyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

func (h *PolicyHandler) Active(w http.ResponseWriter, r *http.Request) {
	policy, err := h.service.ActivePolicy(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, policy)
}

// Create stores a policy built on the defaults; fields absent from the body keep their
// default value.
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload := model.CreatePolicyRequest{PasswordPolicy: model.DefaultPasswordPolicy(), Activate: true}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	policy, err := h.service.CreatePolicy(r.Context(), payload.PasswordPolicy, payload.Activate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, policy)
}
