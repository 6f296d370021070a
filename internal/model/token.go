package model

import "time"

type TokenKind string

const (
	TokenKindCode    TokenKind = "code"
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Entropy in raw bytes for each kind. Client integrations rely on these minimum lengths.
const (
	CodeIDBytes    = 32
	AccessIDBytes  = 64
	RefreshIDBytes = 128
)

const (
	CodeTTL    = 60 * time.Second
	AccessTTL  = 3600 * time.Second
	RefreshTTL = 86400 * time.Second
)

const (
	ChallengeS256  = "S256"
	ChallengePlain = "plain"
)

// JOSE typ header values.
const (
	TypAccess  = "at+jwt"
	TypRefresh = "rt+jwt"
)

func (k TokenKind) IDBytes() int {
	switch k {
	case TokenKindCode:
		return CodeIDBytes
	case TokenKindAccess:
		return AccessIDBytes
	default:
		return RefreshIDBytes
	}
}

func (k TokenKind) TTL() time.Duration {
	switch k {
	case TokenKindCode:
		return CodeTTL
	case TokenKindAccess:
		return AccessTTL
	default:
		return RefreshTTL
	}
}

type Token struct {
	ID       string    `json:"id"`
	Kind     TokenKind `json:"kind"`
	ClientID string    `json:"client_id"`
	// UserID is empty for client-credentials grants.
	UserID   string        `json:"user_id,omitempty"`
	Scope    string        `json:"scope,omitempty"`
	IssuedAt time.Time     `json:"issued_at"`
	TTL      time.Duration `json:"ttl"`

	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

func (t *Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.TTL)
}

func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// PrincipalType tells which principal a token acts for.
func (t *Token) PrincipalType() string {
	if t.UserID != "" {
		return PrincipalUser
	}
	return PrincipalClient
}

// Subject is the principal id the token acts for.
func (t *Token) Subject() string {
	if t.UserID != "" {
		return t.UserID
	}
	return t.ClientID
}

// IssuedToken pairs a stored record with the value handed to the client.
type IssuedToken struct {
	Record *Token
	Value  string
}
