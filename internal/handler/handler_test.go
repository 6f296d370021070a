package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"go-auth-server/internal/cache"
	"go-auth-server/internal/metrics"
	"go-auth-server/internal/model"
	"go-auth-server/internal/repository"
	"go-auth-server/internal/service"
	"go-auth-server/pkg/apierror"
)

const (
	backendSecret = "backend-secret-value"
	alicePassword = "Wonderland-2024"
)

type fakeCredentials struct {
	mu       sync.Mutex
	clients  map[string]*model.Client
	users    map[string]*model.User
	policy   *model.PasswordPolicy
	failures map[string]int
}

func newFakeCredentials(t *testing.T) *fakeCredentials {
	t.Helper()
	secret, err := model.NewSecretCredential(backendSecret)
	require.NoError(t, err)
	password, err := model.NewSecretCredential(alicePassword)
	require.NoError(t, err)

	return &fakeCredentials{
		clients: map[string]*model.Client{
			"backend": {ID: "backend", AppName: "Backend", Profile: model.ProfileWebApplication, Secret: &secret},
			"spa":     {ID: "spa", AppName: "SPA", Profile: model.ProfileBrowserBasedApplication},
		},
		users: map[string]*model.User{
			"user-1": {
				ID: "user-1", Email: "alice@example.com", EmailVerified: true, Password: password,
				Profile: model.UserProfile{Name: "Alice", PhoneNumber: "+100"},
			},
		},
		failures: map[string]int{},
	}
}

func (f *fakeCredentials) AuthenticateUser(_ context.Context, email string, password string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email != email {
			continue
		}
		if f.failures[u.ID] > 10 {
			return nil, apierror.LockedOut()
		}
		if !u.Password.Verify(password) {
			f.failures[u.ID]++
			return nil, apierror.InvalidCredentials()
		}
		f.failures[u.ID] = 0
		return u, nil
	}
	return nil, apierror.InvalidCredentials()
}

func (f *fakeCredentials) GetClient(_ context.Context, id string) (*model.Client, error) {
	if c, ok := f.clients[id]; ok {
		return c, nil
	}
	return nil, apierror.NotFound("client")
}

func (f *fakeCredentials) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, apierror.NotFound("user")
}

func (f *fakeCredentials) ClientSigningKey(*model.Client) ([]byte, error) {
	return []byte(backendSecret), nil
}

func (f *fakeCredentials) CreateUser(_ context.Context, req model.CreateUserRequest, staff bool) (*model.User, error) {
	if req.Email == "" {
		return nil, apierror.Validation("email is required")
	}
	if len(req.Password) < 8 {
		return nil, apierror.PasswordRejected("min_length")
	}
	for _, u := range f.users {
		if u.Email == req.Email {
			return nil, apierror.AlreadyExists("user")
		}
	}
	u := &model.User{ID: "user-new", Email: req.Email, Staff: staff, Profile: req.Profile}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeCredentials) ActivePolicy(context.Context) (*model.PasswordPolicy, error) {
	if f.policy == nil {
		return nil, apierror.NotFound("active password policy")
	}
	return f.policy, nil
}

func (f *fakeCredentials) CreatePolicy(_ context.Context, p model.PasswordPolicy, activate bool) (*model.PasswordPolicy, error) {
	if p.MaxLength > 0 && p.MinLength > p.MaxLength {
		return nil, apierror.Validation("min_length must not exceed max_length")
	}
	p.ID = "policy-1"
	p.IsActive = activate
	if activate {
		f.policy = &p
	}
	return &p, nil
}

type testEnv struct {
	creds   *fakeCredentials
	tokens  *service.TokenService
	oauth   *OAuthHandler
	metrics *metrics.Metrics
	mr      *miniredis.Miniredis
}

func newTestEnv(t *testing.T, cfg service.TokenConfig) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	creds := newFakeCredentials(t)
	tokens := service.NewTokenService(
		repository.NewTokenRepository(cache.NewRedisStore(client)),
		service.NewSigner("handler-test-secret-0123456789abcdef", "test"),
		cfg, nil, nil,
	)
	m := metrics.New(prometheus.NewRegistry())

	return &testEnv{
		creds:   creds,
		tokens:  tokens,
		oauth:   NewOAuthHandler(tokens, creds, "api", m, nil),
		metrics: m,
		mr:      mr,
	}
}

func basic(id string, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(id+":"+secret))
}

func formRequest(method string, target string, form url.Values, authorization string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}
