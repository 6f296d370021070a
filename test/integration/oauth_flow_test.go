//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-server/internal/config"
	"go-auth-server/internal/model"
	"go-auth-server/internal/service"
)

const verifier = "integration-verifier-0123456789-abcdefghijklmnop"

func TestAuthorizationCodeFlow(t *testing.T) {
	server, core := newServer(t, nil)
	ctx := context.Background()

	email := "flow-" + uuid.NewString()[:8] + "@example.com"
	_, err := core.Credentials.CreateUser(ctx, model.CreateUserRequest{Email: email, Password: "Str0ng-pass!"}, false)
	require.NoError(t, err)
	reg, err := core.Credentials.CreateClient(ctx, "Mobile", "", string(model.ProfileNativeApplication))
	require.NoError(t, err)

	resp := postForm(t, server.URL+"/oauth/authorize", url.Values{
		"client_id":             {reg.Client.ID},
		"code_challenge":        {service.S256Challenge(verifier)},
		"code_challenge_method": {model.ChallengeS256},
		"scope":                 {"email"},
	}, basicAuth(email, "Str0ng-pass!"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := decode[model.AuthorizeResponse](t, resp).Code

	resp = postForm(t, server.URL+"/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {reg.Client.ID},
		"code_verifier": {verifier},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tokens := decode[model.TokenResponse](t, resp)
	require.NotEmpty(t, tokens.RefreshToken)

	resp = getWith(t, server.URL+"/api/v1/userinfo", "Bearer "+tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	claims := decode[map[string]any](t, resp)
	assert.Equal(t, email, claims["email"])

	resp = postForm(t, server.URL+"/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
		"client_id":     {reg.Client.ID},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postForm(t, server.URL+"/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
		"client_id":     {reg.Client.ID},
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientCredentialsAndRevoke(t *testing.T) {
	server, core := newServer(t, nil)

	reg, err := core.Credentials.CreateClient(context.Background(), "Billing", "", string(model.ProfileWebApplication))
	require.NoError(t, err)
	auth := basicAuth(reg.Client.ID, reg.ClientSecret)

	resp := postForm(t, server.URL+"/oauth/token", url.Values{"grant_type": {"client_credentials"}}, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decode[model.TokenResponse](t, resp).AccessToken

	resp = getWith(t, server.URL+"/api/v1/users/me", "Bearer "+token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postForm(t, server.URL+"/oauth/revoke", url.Values{"token": {token}}, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getWith(t, server.URL+"/api/v1/users/me", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("WWW-Authenticate"), "Bearer"))
}

func TestLoginLockout(t *testing.T) {
	server, core := newServer(t, nil)
	ctx := context.Background()

	email := "lock-" + uuid.NewString()[:8] + "@example.com"
	_, err := core.Credentials.CreateUser(ctx, model.CreateUserRequest{Email: email, Password: "Str0ng-pass!"}, false)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		resp := getWith(t, server.URL+"/api/v1/users/me", basicAuth(email, "wrong"))
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := getWith(t, server.URL+"/api/v1/users/me", basicAuth(email, "Str0ng-pass!"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestThrottleRetryAfter(t *testing.T) {
	server, _ := newServer(t, func(cfg *config.Config) { cfg.ThrottleAnonRate = "2/m" })

	for i := 0; i < 2; i++ {
		resp := getWith(t, server.URL+"/health", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = getWith(t, server.URL+"/api/v1/password-policy", "")
		require.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
	}

	resp := getWith(t, server.URL+"/api/v1/password-policy", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
