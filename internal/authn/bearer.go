package authn

import (
	"context"
	"errors"
	"net/http"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (*model.Token, error)
}

// Bearer authenticates signed access tokens and resolves their subject.
type Bearer struct {
	tokens      TokenVerifier
	credentials CredentialStore
}

func NewBearer(tokens TokenVerifier, credentials CredentialStore) *Bearer {
	return &Bearer{tokens: tokens, credentials: credentials}
}

func (b *Bearer) Name() string { return "Bearer" }

func (b *Bearer) Authenticate(r *http.Request) (*Result, error) {
	raw, ok := schemeCredentials(r, "Bearer")
	if !ok {
		return nil, nil
	}
	if raw == "" {
		return nil, apierror.AuthenticationFailed("invalid bearer header: no token provided")
	}

	ctx := r.Context()
	token, err := b.tokens.VerifyAccessToken(ctx, raw)
	if err != nil {
		return nil, err
	}

	var principal model.Principal
	switch token.PrincipalType() {
	case model.PrincipalUser:
		principal, err = b.credentials.GetUserByID(ctx, token.UserID)
	default:
		principal, err = b.credentials.GetClient(ctx, token.ClientID)
	}
	if errors.Is(err, apierror.ErrNotFound) {
		// the subject was deleted after issuance
		return nil, apierror.InvalidToken()
	}
	if err != nil {
		return nil, err
	}

	return &Result{Principal: principal, Token: token}, nil
}
