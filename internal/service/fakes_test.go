package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"go-auth-server/internal/cache"
	"go-auth-server/internal/event"
	"go-auth-server/internal/model"
	"go-auth-server/internal/repository"
	"go-auth-server/pkg/apierror"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*model.User{}}
}

func (f *fakeUserStore) FindByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apierror.NotFound("user")
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apierror.NotFound("user")
}

func (f *fakeUserStore) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apierror.AlreadyExists("user")
		}
	}
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserStore) RecordFailedAttempt(_ context.Context, userID string, maxAttempts int, lockoutUntil time.Time) (int, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, nil, apierror.NotFound("user")
	}
	u.FailedAttempts++
	if u.FailedAttempts > maxAttempts {
		until := lockoutUntil
		u.LockoutUntil = &until
	}
	return u.FailedAttempts, u.LockoutUntil, nil
}

func (f *fakeUserStore) ResetFailedAttempts(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.FailedAttempts = 0
		u.LockoutUntil = nil
	}
	return nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, userID string, password model.SecretCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apierror.NotFound("user")
	}
	u.Password = password
	return nil
}

func (f *fakeUserStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return apierror.NotFound("user")
	}
	delete(f.users, id)
	return nil
}

type fakeClientStore struct {
	mu      sync.Mutex
	clients map[string]*model.Client
}

func newFakeClientStore() *fakeClientStore {
	return &fakeClientStore{clients: map[string]*model.Client{}}
}

func (f *fakeClientStore) FindByID(_ context.Context, id string) (*model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return nil, apierror.NotFound("client")
	}
	return c, nil
}

func (f *fakeClientStore) Create(_ context.Context, c *model.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c.ID] = c
	return nil
}

func (f *fakeClientStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[id]; !ok {
		return apierror.NotFound("client")
	}
	delete(f.clients, id)
	return nil
}

type fakePolicyStore struct {
	mu       sync.Mutex
	policies map[string]*model.PasswordPolicy
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{policies: map[string]*model.PasswordPolicy{}}
}

func (f *fakePolicyStore) Create(_ context.Context, p *model.PasswordPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *p
	copied.IsActive = false
	f.policies[p.ID] = &copied
	p.IsActive = false
	return nil
}

func (f *fakePolicyStore) FindActive(_ context.Context) (*model.PasswordPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.policies {
		if p.IsActive {
			copied := *p
			return &copied, nil
		}
	}
	return nil, model.ErrNoActivePolicy
}

func (f *fakePolicyStore) Activate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.policies[id]
	if !ok {
		return apierror.NotFound("password policy")
	}
	for _, p := range f.policies {
		p.IsActive = false
	}
	target.IsActive = true
	return nil
}

func (f *fakePolicyStore) FindByID(_ context.Context, id string) (*model.PasswordPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[id]
	if !ok {
		return nil, apierror.NotFound("password policy")
	}
	copied := *p
	return &copied, nil
}

func (f *fakePolicyStore) List(_ context.Context) ([]model.PasswordPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.PasswordPolicy, 0, len(f.policies))
	for _, p := range f.policies {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePolicyStore) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.policies {
		if p.IsActive {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingPublisher) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestTokenStore(t *testing.T) (*repository.TokenRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return repository.NewTokenRepository(cache.NewRedisStore(client)), mr
}

func testSealer(t *testing.T) *SecretSealer {
	t.Helper()
	sealer, err := NewSecretSealer([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	return sealer
}

// testClock is a mutable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
