package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

func newUserTestFixture(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := NewUserRepository(mock)
	repo.now = func() time.Time { return now }
	return repo, mock, now
}

func sampleUser() *model.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.User{
		ID:            "u-1",
		Email:         "alice@example.com",
		EmailVerified: true,
		Password:      model.SecretCredential{Salt: "c2FsdA", Hash: "aGFzaA"},
		Profile: model.UserProfile{
			Name:    "Alice",
			Address: model.Address{Country: "NL"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func userRow(t *testing.T, u *model.User) *pgxmock.Rows {
	t.Helper()
	profile, err := json.Marshal(u.Profile)
	require.NoError(t, err)
	return pgxmock.NewRows([]string{
		"id", "email", "password_salt", "password_hash", "email_verified", "is_staff",
		"failed_login_attempts", "lockout_until", "profile", "created_at", "updated_at",
	}).AddRow(
		u.ID, u.Email, u.Password.Salt, u.Password.Hash, u.EmailVerified, u.Staff,
		u.FailedAttempts, u.LockoutUntil, profile, u.CreatedAt, u.UpdatedAt,
	)
}

func TestUserRepository_Create(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock, _ := newUserTestFixture(t)
		defer mock.Close()

		u := sampleUser()
		profile, _ := json.Marshal(u.Profile)

		mock.ExpectExec("INSERT INTO users").
			WithArgs(u.ID, u.Email, u.Password.Salt, u.Password.Hash, u.EmailVerified, u.Staff,
				profile, u.CreatedAt, u.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(context.Background(), u))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo, mock, _ := newUserTestFixture(t)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO users").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := repo.Create(context.Background(), sampleUser())
		require.Error(t, err)
		assert.True(t, errors.Is(err, apierror.ErrAlreadyExists), "expected ErrAlreadyExists, got: %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_FindByEmail(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock, _ := newUserTestFixture(t)
		defer mock.Close()

		u := sampleUser()
		mock.ExpectQuery("SELECT .+ FROM users WHERE lower\\(email\\)").
			WithArgs(u.Email).
			WillReturnRows(userRow(t, u))

		got, err := repo.FindByEmail(context.Background(), "  alice@example.com ")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.Password, got.Password)
		assert.Equal(t, "Alice", got.Profile.Name)
		assert.Equal(t, "NL", got.Profile.Address.Country)
		assert.Nil(t, got.LockoutUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, _ := newUserTestFixture(t)
		defer mock.Close()

		mock.ExpectQuery("SELECT .+ FROM users WHERE lower\\(email\\)").
			WithArgs("nobody@example.com").
			WillReturnError(pgx.ErrNoRows)

		got, err := repo.FindByEmail(context.Background(), "nobody@example.com")
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, apierror.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_FindByID(t *testing.T) {
	repo, mock, _ := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	until := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Microsecond)
	u.FailedAttempts = 11
	u.LockoutUntil = &until

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(u.ID).
		WillReturnRows(userRow(t, u))

	got, err := repo.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 11, got.FailedAttempts)
	require.NotNil(t, got.LockoutUntil)
	assert.True(t, until.Equal(*got.LockoutUntil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_RecordFailedAttempt(t *testing.T) {
	t.Run("below threshold", func(t *testing.T) {
		repo, mock, now := newUserTestFixture(t)
		defer mock.Close()

		until := now.Add(30 * time.Minute)
		mock.ExpectQuery("UPDATE users").
			WithArgs("u-1", 10, until, now).
			WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "lockout_until"}).
				AddRow(3, (*time.Time)(nil)))

		attempts, locked, err := repo.RecordFailedAttempt(context.Background(), "u-1", 10, until)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Nil(t, locked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locks past threshold", func(t *testing.T) {
		repo, mock, now := newUserTestFixture(t)
		defer mock.Close()

		until := now.Add(30 * time.Minute)
		mock.ExpectQuery("UPDATE users").
			WithArgs("u-1", 10, until, now).
			WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "lockout_until"}).
				AddRow(11, &until))

		attempts, locked, err := repo.RecordFailedAttempt(context.Background(), "u-1", 10, until)
		require.NoError(t, err)
		assert.Equal(t, 11, attempts)
		require.NotNil(t, locked)
		assert.True(t, until.Equal(*locked))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user", func(t *testing.T) {
		repo, mock, now := newUserTestFixture(t)
		defer mock.Close()

		mock.ExpectQuery("UPDATE users").
			WithArgs("gone", 10, now, now).
			WillReturnError(pgx.ErrNoRows)

		_, _, err := repo.RecordFailedAttempt(context.Background(), "gone", 10, now)
		assert.True(t, errors.Is(err, apierror.ErrNotFound))
	})
}

func TestUserRepository_ResetFailedAttempts(t *testing.T) {
	repo, mock, now := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET failed_login_attempts = 0, lockout_until = NULL").
		WithArgs("u-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.ResetFailedAttempts(context.Background(), "u-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Delete_NotFound(t *testing.T) {
	repo, mock, _ := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM users WHERE id =").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock, now := newUserTestFixture(t)
		defer mock.Close()

		cred := model.SecretCredential{Salt: "bmV3", Hash: "aGFzaDI"}
		mock.ExpectExec("UPDATE users SET password_salt").
			WithArgs("u-1", cred.Salt, cred.Hash, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdatePassword(context.Background(), "u-1", cred))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		repo, mock, now := newUserTestFixture(t)
		defer mock.Close()

		mock.ExpectExec("UPDATE users SET password_salt").
			WithArgs("missing", "s", "h", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdatePassword(context.Background(), "missing", model.SecretCredential{Salt: "s", Hash: "h"})
		assert.True(t, errors.Is(err, apierror.ErrNotFound))
	})
}
