package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-server/internal/event"
	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

type credentialFixture struct {
	svc      *CredentialService
	users    *fakeUserStore
	clients  *fakeClientStore
	policies *fakePolicyStore
	events   *recordingPublisher
	clock    *testClock
}

func newCredentialFixture(t *testing.T) *credentialFixture {
	t.Helper()
	f := &credentialFixture{
		users:    newFakeUserStore(),
		clients:  newFakeClientStore(),
		policies: newFakePolicyStore(),
		events:   &recordingPublisher{},
		clock:    newTestClock(),
	}
	f.svc = NewCredentialService(f.users, f.clients, f.policies, testSealer(t), DefaultLockoutConfig(), f.events, nil)
	f.svc.now = f.clock.Now
	return f
}

func (f *credentialFixture) createUser(t *testing.T, email string, password string) *model.User {
	t.Helper()
	u, err := f.svc.CreateUser(context.Background(), model.CreateUserRequest{Email: email, Password: password}, false)
	require.NoError(t, err)
	return u
}

func TestCredentialService_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("stores salt and hash only", func(t *testing.T) {
		f := newCredentialFixture(t)
		u := f.createUser(t, "alice@example.com", "s3cret-Passw0rd")

		assert.NotEmpty(t, u.Password.Salt)
		assert.NotEmpty(t, u.Password.Hash)
		assert.NotContains(t, u.Password.Hash, "s3cret")
		assert.True(t, f.svc.VerifyPassword(u, "s3cret-Passw0rd"))
		assert.False(t, f.svc.VerifyPassword(u, "s3cret-Passw0rd "))
		assert.Contains(t, f.events.types(), event.TypeUserCreated)
	})

	t.Run("invalid email", func(t *testing.T) {
		f := newCredentialFixture(t)
		_, err := f.svc.CreateUser(ctx, model.CreateUserRequest{Email: "not-an-email", Password: "whatever1"}, false)
		assert.True(t, errors.Is(err, apierror.ErrValidation))
	})

	t.Run("active policy reports first violated rule", func(t *testing.T) {
		f := newCredentialFixture(t)
		p := model.DefaultPasswordPolicy()
		p.RequireUpper = true
		p.RequireDigit = true
		p.AllowDictionaryWords = true
		_, err := f.svc.CreatePolicy(ctx, p, true)
		require.NoError(t, err)

		_, err = f.svc.CreateUser(ctx, model.CreateUserRequest{Email: "bob@example.com", Password: "lowercase-only"}, false)
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		assert.Equal(t, apierror.CodeInvalidPassword, apiErr.Code)
		assert.Equal(t, RuleRequireUpper, apiErr.Description)

		u, err := f.svc.CreateUser(ctx, model.CreateUserRequest{Email: "bob@example.com", Password: "Uppercase-and-9"}, false)
		require.NoError(t, err)
		assert.True(t, f.svc.VerifyPassword(u, "Uppercase-and-9"))
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newCredentialFixture(t)
		f.createUser(t, "carol@example.com", "first-password")
		_, err := f.svc.CreateUser(ctx, model.CreateUserRequest{Email: "Carol@example.com", Password: "second-password"}, false)
		assert.True(t, errors.Is(err, apierror.ErrAlreadyExists))
	})
}

func TestCredentialService_Lockout(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)
	created := f.createUser(t, "dave@example.com", "correct-horse")

	load := func() *model.User {
		u, err := f.users.FindByID(ctx, created.ID)
		require.NoError(t, err)
		return u
	}

	for i := 1; i <= 11; i++ {
		err := f.svc.AuthenticateWithLockout(ctx, load(), "wrong")
		require.True(t, errors.Is(err, apierror.ErrInvalidCredentials), "attempt %d: %v", i, err)
	}

	u := load()
	assert.Equal(t, 11, u.FailedAttempts)
	require.NotNil(t, u.LockoutUntil)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), *u.LockoutUntil)
	assert.Contains(t, f.events.types(), event.TypeAccountLocked)

	t.Run("correct password while locked", func(t *testing.T) {
		err := f.svc.AuthenticateWithLockout(ctx, load(), "correct-horse")
		assert.True(t, errors.Is(err, apierror.ErrLockedOut))
		assert.Equal(t, 11, load().FailedAttempts, "locked attempts are not counted")
	})

	t.Run("after the window", func(t *testing.T) {
		f.clock.Advance(30*time.Minute + time.Second)

		err := f.svc.AuthenticateWithLockout(ctx, load(), "correct-horse")
		require.NoError(t, err)

		u := load()
		assert.Equal(t, 0, u.FailedAttempts)
		assert.Nil(t, u.LockoutUntil)
	})
}

func TestCredentialService_LockoutExpiredThenWrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)
	created := f.createUser(t, "erin@example.com", "correct-horse")

	for i := 0; i < 11; i++ {
		u, _ := f.users.FindByID(ctx, created.ID)
		_ = f.svc.AuthenticateWithLockout(ctx, u, "wrong")
	}
	f.clock.Advance(31 * time.Minute)

	u, _ := f.users.FindByID(ctx, created.ID)
	err := f.svc.AuthenticateWithLockout(ctx, u, "wrong")
	assert.True(t, errors.Is(err, apierror.ErrInvalidCredentials))

	u, _ = f.users.FindByID(ctx, created.ID)
	assert.Equal(t, 1, u.FailedAttempts, "expired lockout restarts the count")
	assert.Nil(t, u.LockoutUntil)
}

func TestCredentialService_AuthenticateUser(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)
	f.createUser(t, "frank@example.com", "correct-horse")

	u, err := f.svc.AuthenticateUser(ctx, "FRANK@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "frank@example.com", u.Email)

	_, err = f.svc.AuthenticateUser(ctx, "nobody@example.com", "correct-horse")
	assert.True(t, errors.Is(err, apierror.ErrInvalidCredentials))
}

func TestCredentialService_Clients(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	t.Run("confidential client gets a secret", func(t *testing.T) {
		reg, err := f.svc.CreateClient(ctx, "billing", "", string(model.ProfileWebApplication))
		require.NoError(t, err)
		require.NotEmpty(t, reg.ClientSecret)
		require.NotNil(t, reg.Client.Secret)
		assert.Equal(t, model.ClientConfidential, reg.Client.Type())

		client, err := f.svc.AuthenticateClient(ctx, reg.Client.ID, reg.ClientSecret)
		require.NoError(t, err)
		assert.Equal(t, reg.Client.ID, client.ID)

		_, err = f.svc.AuthenticateClient(ctx, reg.Client.ID, "nope")
		assert.True(t, errors.Is(err, apierror.ErrInvalidCredentials))

		key, err := f.svc.ClientSigningKey(client)
		require.NoError(t, err)
		assert.Equal(t, reg.ClientSecret, string(key))
	})

	t.Run("public client has no secret", func(t *testing.T) {
		reg, err := f.svc.CreateClient(ctx, "spa", "", string(model.ProfileBrowserBasedApplication))
		require.NoError(t, err)
		assert.Empty(t, reg.ClientSecret)
		assert.Nil(t, reg.Client.Secret)

		_, err = f.svc.AuthenticateClient(ctx, reg.Client.ID, "")
		assert.True(t, errors.Is(err, apierror.ErrInvalidCredentials))
		_, err = f.svc.ClientSigningKey(reg.Client)
		assert.Error(t, err)
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := f.svc.CreateClient(ctx, "x", "", "toaster")
		assert.True(t, errors.Is(err, apierror.ErrValidation))
	})
}

func TestCredentialService_SetActivePolicy(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	_, err := f.svc.ActivePolicy(ctx)
	assert.True(t, errors.Is(err, apierror.ErrNotFound))

	first, err := f.svc.CreatePolicy(ctx, model.DefaultPasswordPolicy(), true)
	require.NoError(t, err)
	second, err := f.svc.CreatePolicy(ctx, model.DefaultPasswordPolicy(), false)
	require.NoError(t, err)

	active, err := f.svc.ActivePolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, f.svc.SetActivePolicy(ctx, second.ID))
	active, err = f.svc.ActivePolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, 1, f.policies.activeCount())

	t.Run("rejects inverted bounds", func(t *testing.T) {
		p := model.DefaultPasswordPolicy()
		p.MinLength = 30
		p.MaxLength = 10
		_, err := f.svc.CreatePolicy(ctx, p, false)
		assert.True(t, errors.Is(err, apierror.ErrValidation))
	})
}

func TestCredentialService_SetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces password and lifts lockout", func(t *testing.T) {
		f := newCredentialFixture(t)
		u := f.createUser(t, "erin@example.com", "old-password")
		for i := 0; i < 12; i++ {
			_, _ = f.svc.AuthenticateUser(ctx, "erin@example.com", "wrong")
		}
		_, err := f.svc.AuthenticateUser(ctx, "erin@example.com", "old-password")
		require.True(t, errors.Is(err, apierror.ErrLockedOut), "got %v", err)

		require.NoError(t, f.svc.SetPassword(ctx, "erin@example.com", "new-password"))

		got, err := f.svc.AuthenticateUser(ctx, "erin@example.com", "new-password")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		_, err = f.svc.AuthenticateUser(ctx, "erin@example.com", "old-password")
		assert.True(t, errors.Is(err, apierror.ErrInvalidCredentials))
		assert.Contains(t, f.events.types(), event.TypePasswordChanged)
	})

	t.Run("enforces active policy", func(t *testing.T) {
		f := newCredentialFixture(t)
		f.createUser(t, "frank@example.com", "old-password")
		p := model.DefaultPasswordPolicy()
		p.RequireDigit = true
		p.AllowDictionaryWords = true
		_, err := f.svc.CreatePolicy(ctx, p, true)
		require.NoError(t, err)

		err = f.svc.SetPassword(ctx, "frank@example.com", "no-digits-here")
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		assert.Equal(t, RuleRequireDigit, apiErr.Description)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newCredentialFixture(t)
		err := f.svc.SetPassword(ctx, "ghost@example.com", "whatever-1")
		assert.True(t, errors.Is(err, apierror.ErrNotFound))
	})
}

func TestCredentialService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	t.Run("user", func(t *testing.T) {
		u := f.createUser(t, "gina@example.com", "some-password")
		require.NoError(t, f.svc.DeleteUser(ctx, "gina@example.com"))
		_, err := f.svc.GetUserByID(ctx, u.ID)
		assert.True(t, errors.Is(err, apierror.ErrNotFound))
		assert.Contains(t, f.events.types(), event.TypeUserDeleted)
	})

	t.Run("client", func(t *testing.T) {
		reg, err := f.svc.CreateClient(ctx, "billing", "", string(model.ProfileWebApplication))
		require.NoError(t, err)
		require.NoError(t, f.svc.DeleteClient(ctx, reg.Client.ID))
		_, err = f.svc.GetClient(ctx, reg.Client.ID)
		assert.True(t, errors.Is(err, apierror.ErrNotFound))
		assert.True(t, errors.Is(f.svc.DeleteClient(ctx, reg.Client.ID), apierror.ErrNotFound))
	})
}

func TestCredentialService_ListPolicies(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	first, err := f.svc.CreatePolicy(ctx, model.DefaultPasswordPolicy(), true)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.CreatePolicy(ctx, model.DefaultPasswordPolicy(), false)
	require.NoError(t, err)

	list, err := f.svc.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	got, err := f.svc.GetPolicy(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = f.svc.GetPolicy(ctx, "missing")
	assert.True(t, errors.Is(err, apierror.ErrNotFound))
}

func TestNewCredentialService_LockoutDefaults(t *testing.T) {
	svc := NewCredentialService(newFakeUserStore(), newFakeClientStore(), newFakePolicyStore(), testSealer(t),
		LockoutConfig{Window: time.Minute}, nil, nil)
	assert.Equal(t, LockoutConfig{MaxAttempts: 10, Window: time.Minute}, svc.lockout)
}
