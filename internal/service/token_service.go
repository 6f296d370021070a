package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go-auth-server/internal/event"
	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

type TokenStore interface {
	Save(ctx context.Context, token *model.Token) error
	Get(ctx context.Context, kind model.TokenKind, id string) (*model.Token, error)
	Consume(ctx context.Context, kind model.TokenKind, id string) (bool, error)
	Delete(ctx context.Context, kind model.TokenKind, id string) error
}

type TokenConfig struct {
	// ClientCredentialsRefresh issues a refresh token alongside client_credentials access tokens.
	ClientCredentialsRefresh bool
	AllowPlainPKCE           bool
}

// TokenPair is what a grant returns; Refresh is nil when no refresh token was issued.
type TokenPair struct {
	Access  model.IssuedToken
	Refresh *model.IssuedToken
}

func (p *TokenPair) Response() model.TokenResponse {
	resp := model.TokenResponse{
		AccessToken: p.Access.Value,
		TokenType:   "bearer",
		ExpiresIn:   int64(p.Access.Record.TTL.Seconds()),
		Scope:       p.Access.Record.Scope,
	}
	if p.Refresh != nil {
		resp.RefreshToken = p.Refresh.Value
	}
	return resp
}

// TokenService implements the authorization_code (with PKCE), refresh_token and
// client_credentials grants. All state lives in the token store.
type TokenService struct {
	store  TokenStore
	signer *Signer
	cfg    TokenConfig
	events event.Publisher
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewTokenService(store TokenStore, signer *Signer, cfg TokenConfig, events event.Publisher, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = event.Nop
	}
	return &TokenService{
		store:  store,
		signer: signer,
		cfg:    cfg,
		events: events,
		logger: logger,
		tracer: otel.Tracer("go-auth-server/service"),
		now:    time.Now,
	}
}

func (s *TokenService) startSpan(ctx context.Context, name string, clientID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("client.id", clientID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IssueCode stores a single-use authorization code bound to the PKCE challenge.
func (s *TokenService) IssueCode(ctx context.Context, client *model.Client, user *model.User, scope string,
	challenge string, method string) (_ *model.Token, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.IssueCode", client.ID)
	defer func() { endSpan(span, err) }()

	switch method {
	case model.ChallengeS256:
	case model.ChallengePlain:
		if !s.cfg.AllowPlainPKCE {
			return nil, apierror.Validation("code_challenge_method plain is not allowed")
		}
	default:
		return nil, apierror.Validation("code_challenge_method must be S256 or plain")
	}
	if challenge == "" {
		return nil, apierror.Validation("code_challenge is required")
	}

	code, err := s.newToken(model.TokenKindCode, client.ID, user.ID, scope)
	if err != nil {
		return nil, err
	}
	code.CodeChallenge = challenge
	code.CodeChallengeMethod = method

	if err := s.store.Save(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// ExchangeCode redeems an authorization code. The code is only removed once every check
// has passed; of two concurrent redemptions exactly one succeeds.
func (s *TokenService) ExchangeCode(ctx context.Context, code string, client *model.Client, verifier string) (_ *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.ExchangeCode", client.ID)
	defer func() { endSpan(span, err) }()

	record, err := s.store.Get(ctx, model.TokenKindCode, code)
	if errors.Is(err, model.ErrTokenNotFound) {
		return nil, apierror.InvalidGrant("authorization code is invalid or expired")
	}
	if err != nil {
		return nil, err
	}

	if record.ClientID != client.ID {
		return nil, apierror.ClientMismatch()
	}
	if err := verifyCodeChallenge(record, verifier); err != nil {
		return nil, err
	}

	consumed, err := s.store.Consume(ctx, model.TokenKindCode, code)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, apierror.InvalidGrant("authorization code is invalid or expired")
	}

	return s.issuePair(ctx, record.ClientID, record.UserID, record.Scope, true)
}

// verifyCodeChallenge checks the verifier length before comparing against the challenge.
func verifyCodeChallenge(code *model.Token, verifier string) error {
	if n := len(verifier); n < minVerifierLength || n > maxVerifierLength {
		return apierror.InvalidCodeVerifier("code_verifier must be between 43 and 128 characters")
	}

	var computed string
	switch code.CodeChallengeMethod {
	case model.ChallengeS256:
		computed = S256Challenge(verifier)
	case model.ChallengePlain:
		computed = verifier
	default:
		return apierror.InvalidCodeVerifier("unsupported code_challenge_method")
	}

	if subtle.ConstantTimeCompare([]byte(computed), []byte(code.CodeChallenge)) != 1 {
		return apierror.InvalidCodeVerifier("code_verifier does not match code_challenge")
	}
	return nil
}

// S256Challenge is base64url(sha256(verifier)) without padding.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Refresh rotates a refresh token: the presented one is consumed and a new pair issued.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string, client *model.Client) (_ *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.Refresh", client.ID)
	defer func() { endSpan(span, err) }()

	claims, _, err := s.signer.Parse(refreshToken, model.TypRefresh)
	if err != nil {
		s.logger.Warn("refresh token rejected", "client_id", client.ID, "reason", err.Error())
		return nil, apierror.InvalidGrant("refresh token is invalid or expired")
	}

	record, err := s.store.Get(ctx, model.TokenKindRefresh, claims.ID)
	if errors.Is(err, model.ErrTokenNotFound) {
		return nil, apierror.InvalidGrant("refresh token is invalid or expired")
	}
	if err != nil {
		return nil, err
	}
	if record.ClientID != client.ID {
		return nil, apierror.ClientMismatch()
	}

	consumed, err := s.store.Consume(ctx, model.TokenKindRefresh, claims.ID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, apierror.InvalidGrant("refresh token is invalid or expired")
	}

	return s.issuePair(ctx, record.ClientID, record.UserID, record.Scope, true)
}

// ClientCredentials issues an access token acting for the client itself.
func (s *TokenService) ClientCredentials(ctx context.Context, client *model.Client, secret string, scope string) (_ *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.ClientCredentials", client.ID)
	defer func() { endSpan(span, err) }()

	if !client.IsConfidential() {
		return nil, apierror.UnsupportedGrant("client_credentials requires a confidential client")
	}
	if !client.VerifySecret(secret) {
		return nil, apierror.InvalidClient("invalid client_secret")
	}

	return s.issuePair(ctx, client.ID, "", scope, s.cfg.ClientCredentialsRefresh)
}

// Validate returns nil when the token is absent or expired; only store failures are errors.
func (s *TokenService) Validate(ctx context.Context, kind model.TokenKind, id string) (*model.Token, error) {
	record, err := s.store.Get(ctx, kind, id)
	if errors.Is(err, model.ErrTokenNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if record.Expired(s.now()) {
		return nil, nil
	}
	return record, nil
}

// VerifyAccessToken authenticates a signed bearer credential. A refresh token fails with
// TokenTypeMismatch; anything else that does not check out is InvalidToken.
func (s *TokenService) VerifyAccessToken(ctx context.Context, raw string) (*model.Token, error) {
	claims, _, err := s.signer.Parse(raw, model.TypAccess)
	if errors.Is(err, errWrongTokenType) {
		s.logger.Warn("bearer token verification failed", "reason", "type_mismatch")
		return nil, apierror.TokenTypeMismatch()
	}
	if err != nil {
		s.logger.Warn("bearer token verification failed", "reason", err.Error())
		return nil, apierror.InvalidToken()
	}

	record, err := s.Validate(ctx, model.TokenKindAccess, claims.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		s.logger.Warn("bearer token verification failed", "reason", "revoked_or_expired", "jti_prefix", prefix(claims.ID))
		return nil, apierror.InvalidToken()
	}
	return record, nil
}

// Revoke deletes an access or refresh token owned by client. Unknown, malformed or foreign
// tokens are ignored so the endpoint never reveals token validity.
func (s *TokenService) Revoke(ctx context.Context, raw string, client *model.Client) (err error) {
	ctx, span := s.startSpan(ctx, "TokenService.Revoke", client.ID)
	defer func() { endSpan(span, err) }()

	claims, kind, err := s.signer.Parse(raw, "")
	if err != nil {
		s.logger.Debug("revocation ignored", "client_id", client.ID, "reason", err.Error())
		return nil
	}

	record, err := s.Validate(ctx, kind, claims.ID)
	if err != nil {
		return err
	}
	if record == nil || record.ClientID != client.ID {
		return nil
	}

	if err := s.store.Delete(ctx, kind, claims.ID); err != nil {
		return err
	}
	s.events.Publish(event.New(event.TypeTokenRevoked, record.Subject(), map[string]any{
		"client_id": client.ID,
		"kind":      kind,
	}))
	return nil
}

func (s *TokenService) issuePair(ctx context.Context, clientID string, userID string, scope string, withRefresh bool) (*TokenPair, error) {
	access, err := s.issue(ctx, model.TokenKindAccess, clientID, userID, scope)
	if err != nil {
		return nil, err
	}
	pair := &TokenPair{Access: *access}

	if withRefresh {
		refresh, err := s.issue(ctx, model.TokenKindRefresh, clientID, userID, scope)
		if err != nil {
			return nil, err
		}
		pair.Refresh = refresh
	}

	s.events.Publish(event.New(event.TypeTokenIssued, access.Record.Subject(), map[string]any{
		"client_id": clientID,
		"refresh":   withRefresh,
	}))
	return pair, nil
}

func (s *TokenService) issue(ctx context.Context, kind model.TokenKind, clientID string, userID string, scope string) (*model.IssuedToken, error) {
	record, err := s.newToken(kind, clientID, userID, scope)
	if err != nil {
		return nil, err
	}
	value, err := s.signer.Sign(record)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return &model.IssuedToken{Record: record, Value: value}, nil
}

func (s *TokenService) newToken(kind model.TokenKind, clientID string, userID string, scope string) (*model.Token, error) {
	id, err := randomToken(kind.IDBytes())
	if err != nil {
		return nil, err
	}
	return &model.Token{
		ID:       id,
		Kind:     kind,
		ClientID: clientID,
		UserID:   userID,
		Scope:    scope,
		// JWT timestamps have second precision.
		IssuedAt: s.now().UTC().Truncate(time.Second),
		TTL:      kind.TTL(),
	}, nil
}

func prefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
