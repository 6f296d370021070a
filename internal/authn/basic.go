package authn

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

// Basic authenticates "client_id:secret" for clients, else "email:password" for users.
// User logins go through lockout.
type Basic struct {
	credentials CredentialStore
}

func NewBasic(credentials CredentialStore) *Basic {
	return &Basic{credentials: credentials}
}

func (b *Basic) Name() string { return "Basic" }

func (b *Basic) Authenticate(r *http.Request) (*Result, error) {
	raw, ok := schemeCredentials(r, "Basic")
	if !ok {
		return nil, nil
	}

	id, secret, err := ParseBasic(raw)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	client, err := b.credentials.GetClient(ctx, id)
	switch {
	case err == nil:
		if !client.VerifySecret(secret) {
			return nil, apierror.InvalidCredentials()
		}
		return &Result{Principal: client}, nil
	case !errors.Is(err, apierror.ErrNotFound):
		return nil, err
	}

	user, err := b.credentials.AuthenticateUser(ctx, id, secret)
	if err != nil {
		return nil, err
	}
	return &Result{Principal: user}, nil
}

// ParseBasic decodes base64(id:secret), splitting on the first colon.
func ParseBasic(raw string) (string, string, error) {
	if raw == "" {
		return "", "", apierror.AuthenticationFailed("invalid basic header: no credentials provided")
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", "", apierror.AuthenticationFailed("invalid basic header: credentials not correctly base64 encoded")
	}
	id, secret, found := strings.Cut(string(decoded), ":")
	if !found || id == "" {
		return "", "", apierror.AuthenticationFailed("invalid basic header: credentials must be id:secret")
	}
	return id, secret, nil
}

// BasicUser is Basic restricted to user credentials, used by the authorize endpoint.
func BasicUser(r *http.Request, store CredentialStore) (*model.User, error) {
	raw, ok := schemeCredentials(r, "Basic")
	if !ok {
		return nil, apierror.AuthenticationFailed("user credentials are required")
	}
	email, password, err := ParseBasic(raw)
	if err != nil {
		return nil, err
	}
	return store.AuthenticateUser(r.Context(), email, password)
}
