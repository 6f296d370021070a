package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

const userColumns = `id, email, password_salt, password_hash, email_verified, is_staff,
		        failed_login_attempts, lockout_until, profile, created_at, updated_at`

type UserRepository struct {
	db  DBTX
	now func() time.Time
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierror.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierror.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO users (id, email, password_salt, password_hash, email_verified, is_staff, profile, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.Password.Salt, u.Password.Hash, u.EmailVerified, u.Staff, profile, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.AlreadyExists("user")
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// RecordFailedAttempt increments the failure counter and, once it exceeds maxAttempts,
// sets lockout_until. The returned values are the row state after the update.
func (r *UserRepository) RecordFailedAttempt(ctx context.Context, userID string, maxAttempts int, lockoutUntil time.Time) (int, *time.Time, error) {
	var (
		attempts int
		until    *time.Time
	)
	err := r.db.QueryRow(ctx,
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     lockout_until = CASE WHEN failed_login_attempts + 1 > $2 THEN $3 ELSE lockout_until END,
		     updated_at = $4
		 WHERE id = $1
		 RETURNING failed_login_attempts, lockout_until`,
		userID, maxAttempts, lockoutUntil, r.now().UTC()).Scan(&attempts, &until)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, apierror.NotFound("user")
	}
	if err != nil {
		return 0, nil, fmt.Errorf("record failed attempt: %w", err)
	}
	return attempts, until, nil
}

func (r *UserRepository) ResetFailedAttempts(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, lockout_until = NULL, updated_at = $2 WHERE id = $1`,
		userID, r.now().UTC())
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, password model.SecretCredential) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_salt = $2, password_hash = $3, updated_at = $4 WHERE id = $1`,
		userID, password.Salt, password.Hash, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("user")
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("user")
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u       model.User
		profile []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Password.Salt, &u.Password.Hash, &u.EmailVerified, &u.Staff,
		&u.FailedAttempts, &u.LockoutUntil, &profile, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Profile); err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
	}
	return &u, nil
}
