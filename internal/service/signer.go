package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-auth-server/internal/model"
)

var (
	errWrongTokenType = errors.New("unexpected token type")
	errTokenMalformed = errors.New("malformed token")
)

// TokenClaims is the payload of signed access and refresh tokens. The JOSE typ header
// carries the kind.
type TokenClaims struct {
	jwt.RegisteredClaims
	ClientID      string `json:"client_id"`
	Scope         string `json:"scope,omitempty"`
	PrincipalType string `json:"principal_type"`
}

// Signer produces and verifies HS256 tokens whose jti is the stored record id.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewSigner(secret string, issuer string) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func typFor(kind model.TokenKind) string {
	if kind == model.TokenKindRefresh {
		return model.TypRefresh
	}
	return model.TypAccess
}

func (s *Signer) Sign(t *model.Token) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   t.Subject(),
			ID:        t.ID,
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt()),
		},
		ClientID:      t.ClientID,
		Scope:         t.Scope,
		PrincipalType: t.PrincipalType(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["typ"] = typFor(t.Kind)

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", t.Kind, err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry, then the typ header. An empty expectedTyp
// accepts either kind. The returned kind is derived from typ.
func (s *Signer) Parse(raw string, expectedTyp string) (*TokenClaims, model.TokenKind, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, "", err
	}

	typ, _ := parsed.Header["typ"].(string)
	var kind model.TokenKind
	switch typ {
	case model.TypAccess:
		kind = model.TokenKindAccess
	case model.TypRefresh:
		kind = model.TokenKindRefresh
	default:
		return nil, "", fmt.Errorf("%w: typ %q", errTokenMalformed, typ)
	}

	if expectedTyp != "" && typ != expectedTyp {
		return nil, kind, fmt.Errorf("%w: got %s, want %s", errWrongTokenType, typ, expectedTyp)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, "", fmt.Errorf("%w: missing jti or sub", errTokenMalformed)
	}
	return claims, kind, nil
}
