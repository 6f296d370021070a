package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-auth-server/internal/authn"
	"go-auth-server/internal/metrics"
	"go-auth-server/internal/model"
	"go-auth-server/internal/service"
	"go-auth-server/pkg/apierror"
)

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

type tokenIssuer interface {
	IssueCode(ctx context.Context, client *model.Client, user *model.User, scope string, challenge string, method string) (*model.Token, error)
	ExchangeCode(ctx context.Context, code string, client *model.Client, verifier string) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string, client *model.Client) (*service.TokenPair, error)
	ClientCredentials(ctx context.Context, client *model.Client, secret string, scope string) (*service.TokenPair, error)
	Revoke(ctx context.Context, raw string, client *model.Client) error
}

// OAuthHandler serves /oauth/token, /oauth/authorize and /oauth/revoke. These endpoints
// authenticate their own parameters, so 401s challenge for Basic credentials.
type OAuthHandler struct {
	tokens      tokenIssuer
	credentials authn.CredentialStore
	realm       string
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewOAuthHandler(tokens tokenIssuer, credentials authn.CredentialStore, realm string, m *metrics.Metrics, logger *slog.Logger) *OAuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthHandler{tokens: tokens, credentials: credentials, realm: realm, metrics: m, logger: logger}
}

func (h *OAuthHandler) writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierror.As(err); ok && apiErr.HTTPStatus == http.StatusUnauthorized && apiErr.Challenge == "" {
		err = apiErr.WithChallenge("Basic", h.realm)
	}
	writeError(w, err)
}

// Token implements the token endpoint for the authorization_code, refresh_token and
// client_credentials grants.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, apierror.Validation("invalid form body"))
		return
	}

	req := model.TokenRequest{
		GrantType:    strings.TrimSpace(r.PostForm.Get("grant_type")),
		Code:         r.PostForm.Get("code"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		Scope:        r.PostForm.Get("scope"),
	}

	var (
		pair *service.TokenPair
		err  error
	)
	switch req.GrantType {
	case GrantAuthorizationCode:
		pair, err = h.authorizationCode(r, req)
	case GrantRefreshToken:
		pair, err = h.refreshToken(r, req)
	case GrantClientCredentials:
		pair, err = h.clientCredentials(r, req)
	case "":
		err = apierror.Validation("missing parameter 'grant_type'")
	default:
		err = apierror.UnsupportedGrant("grant_type must be authorization_code, refresh_token or client_credentials")
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TokensIssued.WithLabelValues(req.GrantType).Inc()
	}
	writeCredentials(w, http.StatusOK, pair.Response())
}

func (h *OAuthHandler) authorizationCode(r *http.Request, req model.TokenRequest) (*service.TokenPair, error) {
	if req.Code == "" {
		return nil, apierror.Validation("missing parameter 'code'")
	}
	if req.CodeVerifier == "" {
		return nil, apierror.Validation("missing parameter 'code_verifier'")
	}
	client, err := h.requestClient(r)
	if err != nil {
		return nil, err
	}
	return h.tokens.ExchangeCode(r.Context(), req.Code, client, req.CodeVerifier)
}

func (h *OAuthHandler) refreshToken(r *http.Request, req model.TokenRequest) (*service.TokenPair, error) {
	if req.RefreshToken == "" {
		return nil, apierror.Validation("missing parameter 'refresh_token'")
	}
	client, err := h.requestClient(r)
	if err != nil {
		return nil, err
	}
	return h.tokens.Refresh(r.Context(), req.RefreshToken, client)
}

func (h *OAuthHandler) clientCredentials(r *http.Request, req model.TokenRequest) (*service.TokenPair, error) {
	id, secret, err := basicCredentials(r)
	if err != nil {
		return nil, err
	}
	client, ok, err := authenticatedClient(r)
	if err != nil {
		return nil, err
	}
	if !ok {
		if client, err = h.lookupClient(r.Context(), id); err != nil {
			return nil, err
		}
	}
	return h.tokens.ClientCredentials(r.Context(), client, secret, req.Scope)
}

// authenticatedClient returns the client resolved by the authentication middleware, if any.
// A user principal on a client endpoint is rejected.
func authenticatedClient(r *http.Request) (*model.Client, bool, error) {
	switch p := authn.PrincipalFromContext(r.Context()).(type) {
	case nil:
		return nil, false, nil
	case *model.Client:
		return p, true, nil
	default:
		return nil, false, apierror.InvalidClient("client authentication via Basic is required")
	}
}

// requestClient identifies the client of a code or refresh grant: Basic credentials when
// present (required for confidential clients), else the client_id parameter.
func (h *OAuthHandler) requestClient(r *http.Request) (*model.Client, error) {
	if client, ok, err := authenticatedClient(r); ok || err != nil {
		return client, err
	}
	if r.Header.Get("Authorization") != "" {
		id, secret, err := basicCredentials(r)
		if err != nil {
			return nil, err
		}
		client, err := h.lookupClient(r.Context(), id)
		if err != nil {
			return nil, err
		}
		if !client.VerifySecret(secret) {
			return nil, apierror.InvalidClient("invalid client credentials")
		}
		return client, nil
	}

	id := r.Form.Get("client_id")
	if id == "" {
		return nil, apierror.Validation("missing parameter 'client_id'")
	}
	client, err := h.lookupClient(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if client.IsConfidential() {
		return nil, apierror.InvalidClient("confidential clients must authenticate")
	}
	return client, nil
}

func (h *OAuthHandler) lookupClient(ctx context.Context, id string) (*model.Client, error) {
	client, err := h.credentials.GetClient(ctx, id)
	if errors.Is(err, apierror.ErrNotFound) {
		return nil, apierror.InvalidClient("invalid client_id")
	}
	return client, err
}

func basicCredentials(r *http.Request) (string, string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, raw, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Basic") {
		return "", "", apierror.InvalidClient("client authentication via Basic is required")
	}
	return authn.ParseBasic(strings.TrimSpace(raw))
}

// Authorize issues an authorization code to a public client on behalf of the user whose
// credentials arrive in the Basic header.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, apierror.Validation("invalid form body"))
		return
	}

	req := model.AuthorizeRequest{
		ClientID:            r.Form.Get("client_id"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: r.Form.Get("code_challenge_method"),
		Scope:               r.Form.Get("scope"),
	}
	if req.ClientID == "" {
		h.writeError(w, apierror.Validation("missing parameter 'client_id'"))
		return
	}

	client, err := h.lookupClient(r.Context(), req.ClientID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if client.IsConfidential() {
		h.writeError(w, apierror.UnauthorizedClient("client not authorized to use the authorization code flow"))
		return
	}
	if req.CodeChallenge == "" {
		h.writeError(w, apierror.Validation("missing parameter 'code_challenge'"))
		return
	}
	if req.CodeChallengeMethod != model.ChallengeS256 && req.CodeChallengeMethod != model.ChallengePlain {
		h.writeError(w, apierror.Validation("invalid code_challenge_method"))
		return
	}

	user, err := h.requestUser(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	code, err := h.tokens.IssueCode(r.Context(), client, user, req.Scope, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("authorization code issued", "client_id", client.ID, "user_id", user.ID)
	writeCredentials(w, http.StatusOK, model.AuthorizeResponse{Code: code.ID})
}

// requestUser prefers the user resolved by the authentication middleware so a login is
// only checked (and counted against lockout) once.
func (h *OAuthHandler) requestUser(r *http.Request) (*model.User, error) {
	switch p := authn.PrincipalFromContext(r.Context()).(type) {
	case nil:
		return authn.BasicUser(r, h.credentials)
	case *model.User:
		return p, nil
	default:
		return nil, apierror.AuthenticationFailed("user credentials are required")
	}
}

// Revoke always answers 200 for authenticated clients, whether or not the token existed.
func (h *OAuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, apierror.Validation("invalid form body"))
		return
	}

	req := model.RevokeRequest{Token: r.PostForm.Get("token")}
	if req.Token == "" {
		h.writeError(w, apierror.Validation("missing parameter 'token'"))
		return
	}

	client, err := h.requestClient(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.Token, client); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
