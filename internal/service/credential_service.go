package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"go-auth-server/internal/event"
	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

const clientSecretBytes = 32

type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	RecordFailedAttempt(ctx context.Context, userID string, maxAttempts int, lockoutUntil time.Time) (int, *time.Time, error)
	ResetFailedAttempts(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID string, password model.SecretCredential) error
	Delete(ctx context.Context, id string) error
}

type ClientStore interface {
	FindByID(ctx context.Context, id string) (*model.Client, error)
	Create(ctx context.Context, c *model.Client) error
	Delete(ctx context.Context, id string) error
}

type PolicyStore interface {
	Create(ctx context.Context, p *model.PasswordPolicy) error
	FindActive(ctx context.Context) (*model.PasswordPolicy, error)
	FindByID(ctx context.Context, id string) (*model.PasswordPolicy, error)
	List(ctx context.Context) ([]model.PasswordPolicy, error)
	Activate(ctx context.Context, id string) error
}

type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
}

func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{MaxAttempts: 10, Window: 30 * time.Minute}
}

// CredentialService owns users, clients and password policies: hashing, policy
// enforcement and login lockout.
type CredentialService struct {
	users    UserStore
	clients  ClientStore
	policies PolicyStore
	sealer   *SecretSealer
	lockout  LockoutConfig
	validate *validator.Validate
	events   event.Publisher
	logger   *slog.Logger
	now      func() time.Time

	// dummy is verified against when an email is unknown so the response time matches a
	// real password check.
	dummy model.SecretCredential
}

func NewCredentialService(users UserStore, clients ClientStore, policies PolicyStore, sealer *SecretSealer,
	lockout LockoutConfig, events event.Publisher, logger *slog.Logger) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = event.Nop
	}
	defaults := DefaultLockoutConfig()
	if lockout.MaxAttempts <= 0 {
		lockout.MaxAttempts = defaults.MaxAttempts
	}
	if lockout.Window <= 0 {
		lockout.Window = defaults.Window
	}
	dummy, _ := model.NewSecretCredential(uuid.NewString())

	return &CredentialService{
		users:    users,
		clients:  clients,
		policies: policies,
		sealer:   sealer,
		lockout:  lockout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		events:   events,
		logger:   logger,
		now:      time.Now,
		dummy:    dummy,
	}
}

func (s *CredentialService) CreateUser(ctx context.Context, req model.CreateUserRequest, staff bool) (*model.User, error) {
	email := strings.TrimSpace(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apierror.Validation("email is not a valid address")
	}
	if req.Password == "" {
		return nil, apierror.Validation("password is required")
	}

	if err := s.checkPassword(ctx, req.Password); err != nil {
		return nil, err
	}

	cred, err := model.NewSecretCredential(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  cred,
		Staff:     staff,
		Profile:   req.Profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "staff", staff)
	s.events.Publish(event.New(event.TypeUserCreated, user.ID, nil))
	return user, nil
}

// checkPassword applies the active policy, if any, reporting only the first violated rule.
func (s *CredentialService) checkPassword(ctx context.Context, password string) error {
	policy, err := s.policies.FindActive(ctx)
	if errors.Is(err, model.ErrNoActivePolicy) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := ValidatePassword(policy, password); err != nil {
		var violation *PolicyViolation
		if errors.As(err, &violation) {
			return apierror.PasswordRejected(violation.Rule)
		}
		return err
	}
	return nil
}

// SetPassword replaces a user's password under the active policy and lifts any lockout.
func (s *CredentialService) SetPassword(ctx context.Context, email string, password string) error {
	if password == "" {
		return apierror.Validation("password is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.checkPassword(ctx, password); err != nil {
		return err
	}

	cred, err := model.NewSecretCredential(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, cred); err != nil {
		return err
	}
	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", user.ID)
	s.events.Publish(event.New(event.TypePasswordChanged, user.ID, nil))
	return nil
}

func (s *CredentialService) DeleteUser(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", user.ID)
	s.events.Publish(event.New(event.TypeUserDeleted, user.ID, nil))
	return nil
}

func (s *CredentialService) VerifyPassword(user *model.User, password string) bool {
	return user.Password.Verify(password)
}

// AuthenticateWithLockout checks password against user, maintaining the lockout state.
// A running lockout fails without looking at the password; an elapsed one is cleared first.
func (s *CredentialService) AuthenticateWithLockout(ctx context.Context, user *model.User, password string) error {
	now := s.now().UTC()

	if user.LockoutUntil != nil {
		if user.IsLockedOut(now) {
			s.logger.Warn("login rejected: account locked", "user_id", user.ID, "until", user.LockoutUntil)
			return apierror.LockedOut()
		}
		if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			return err
		}
		user.FailedAttempts = 0
		user.LockoutUntil = nil
	}

	if !s.VerifyPassword(user, password) {
		attempts, until, err := s.users.RecordFailedAttempt(ctx, user.ID, s.lockout.MaxAttempts, now.Add(s.lockout.Window))
		if err != nil {
			return err
		}
		user.FailedAttempts = attempts
		user.LockoutUntil = until

		s.events.Publish(event.New(event.TypeLoginFailed, user.ID, map[string]any{"attempts": attempts}))
		if until != nil {
			s.logger.Warn("account locked", "user_id", user.ID, "attempts", attempts, "until", *until)
			s.events.Publish(event.New(event.TypeAccountLocked, user.ID, map[string]any{"until": *until}))
		}
		return apierror.InvalidCredentials()
	}

	if user.FailedAttempts > 0 {
		if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			return err
		}
		user.FailedAttempts = 0
	}
	s.events.Publish(event.New(event.TypeLoginSucceeded, user.ID, nil))
	return nil
}

// AuthenticateUser resolves email and runs the lockout-aware password check.
func (s *CredentialService) AuthenticateUser(ctx context.Context, email string, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, apierror.ErrNotFound) {
		s.dummy.Verify(password)
		return nil, apierror.InvalidCredentials()
	}
	if err != nil {
		return nil, err
	}

	if err := s.AuthenticateWithLockout(ctx, user, password); err != nil {
		return nil, err
	}
	return user, nil
}

// AuthenticateClient verifies a confidential client's secret. Public clients never pass.
func (s *CredentialService) AuthenticateClient(ctx context.Context, clientID string, secret string) (*model.Client, error) {
	client, err := s.clients.FindByID(ctx, clientID)
	if errors.Is(err, apierror.ErrNotFound) {
		s.dummy.Verify(secret)
		return nil, apierror.InvalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if !client.VerifySecret(secret) {
		return nil, apierror.InvalidCredentials()
	}
	return client, nil
}

// ClientSigningKey recovers the raw secret used to key HMAC signatures.
func (s *CredentialService) ClientSigningKey(client *model.Client) ([]byte, error) {
	if client.SealedSecret == "" {
		return nil, fmt.Errorf("client %s has no signing key", client.ID)
	}
	secret, err := s.sealer.Open(client.SealedSecret)
	if err != nil {
		return nil, err
	}
	return []byte(secret), nil
}

// CreateClient registers an application. Confidential clients get a secret, returned only
// in the registration.
func (s *CredentialService) CreateClient(ctx context.Context, appName string, description string, profile string) (*model.ClientRegistration, error) {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return nil, apierror.Validation("app_name is required")
	}
	p, err := model.ParseClientProfile(profile)
	if err != nil {
		return nil, apierror.Validation(err.Error())
	}

	client := &model.Client{
		ID:          uuid.NewString(),
		AppName:     appName,
		Description: strings.TrimSpace(description),
		Profile:     p,
		CreatedAt:   s.now().UTC(),
	}

	var rawSecret string
	if client.IsConfidential() {
		rawSecret, err = randomToken(clientSecretBytes)
		if err != nil {
			return nil, err
		}
		cred, err := model.NewSecretCredential(rawSecret)
		if err != nil {
			return nil, fmt.Errorf("hash client secret: %w", err)
		}
		client.Secret = &cred
		if client.SealedSecret, err = s.sealer.Seal(rawSecret); err != nil {
			return nil, err
		}
	}

	if err := s.clients.Create(ctx, client); err != nil {
		return nil, err
	}

	s.logger.Info("client created", "client_id", client.ID, "type", client.Type())
	s.events.Publish(event.New(event.TypeClientCreated, client.ID, map[string]any{"type": client.Type()}))
	return &model.ClientRegistration{Client: client, ClientSecret: rawSecret}, nil
}

func (s *CredentialService) GetClient(ctx context.Context, id string) (*model.Client, error) {
	return s.clients.FindByID(ctx, id)
}

// DeleteClient removes the registration; client-credential tokens it holds stop resolving.
func (s *CredentialService) DeleteClient(ctx context.Context, id string) error {
	if err := s.clients.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("client deleted", "client_id", id)
	s.events.Publish(event.New(event.TypeClientDeleted, id, nil))
	return nil
}

func (s *CredentialService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}

// CreatePolicy stores a policy and optionally makes it the active one.
func (s *CredentialService) CreatePolicy(ctx context.Context, p model.PasswordPolicy, activate bool) (*model.PasswordPolicy, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, apierror.Validation("min_length and max_length must not be negative")
	}
	if p.MaxLength > 0 && p.MinLength > p.MaxLength {
		return nil, apierror.Validation("min_length must not exceed max_length")
	}

	p.ID = uuid.NewString()
	p.CreatedAt = s.now().UTC()
	if err := s.policies.Create(ctx, &p); err != nil {
		return nil, err
	}

	if activate {
		if err := s.SetActivePolicy(ctx, p.ID); err != nil {
			return nil, err
		}
		p.IsActive = true
	}
	return &p, nil
}

// SetActivePolicy deactivates every other policy before activating id.
func (s *CredentialService) SetActivePolicy(ctx context.Context, id string) error {
	if err := s.policies.Activate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("password policy activated", "policy_id", id)
	s.events.Publish(event.New(event.TypePolicyActivated, id, nil))
	return nil
}

func (s *CredentialService) ActivePolicy(ctx context.Context) (*model.PasswordPolicy, error) {
	p, err := s.policies.FindActive(ctx)
	if errors.Is(err, model.ErrNoActivePolicy) {
		return nil, apierror.NotFound("active password policy")
	}
	return p, err
}

func (s *CredentialService) GetPolicy(ctx context.Context, id string) (*model.PasswordPolicy, error) {
	return s.policies.FindByID(ctx, id)
}

// ListPolicies returns every stored policy, newest first.
func (s *CredentialService) ListPolicies(ctx context.Context) ([]model.PasswordPolicy, error) {
	return s.policies.List(ctx)
}
