package model

import (
	"fmt"
	"time"
)

type ClientType string

const (
	ClientConfidential ClientType = "confidential"
	ClientPublic       ClientType = "public"
)

type ClientProfile string

const (
	ProfileWebApplication          ClientProfile = "web application"
	ProfileBrowserBasedApplication ClientProfile = "browser-based application"
	ProfileNativeApplication       ClientProfile = "native application"
)

var profileTypes = map[ClientProfile]ClientType{
	ProfileWebApplication:          ClientConfidential,
	ProfileBrowserBasedApplication: ClientPublic,
	ProfileNativeApplication:       ClientPublic,
}

// ParseClientProfile validates a profile name against the closed set.
func ParseClientProfile(raw string) (ClientProfile, error) {
	p := ClientProfile(raw)
	if _, ok := profileTypes[p]; !ok {
		return "", fmt.Errorf("invalid client profile %q", raw)
	}
	return p, nil
}

// Type is derived from the profile: web applications are confidential, everything else
// is public.
func (p ClientProfile) Type() ClientType {
	if t, ok := profileTypes[p]; ok {
		return t
	}
	return ClientPublic
}

type Client struct {
	ID          string        `json:"client_id"`
	AppName     string        `json:"app_name"`
	Description string        `json:"description,omitempty"`
	Profile     ClientProfile `json:"profile"`
	// Secret is nil for public clients.
	Secret *SecretCredential `json:"-"`
	// SealedSecret is the encrypted signing key used to verify HMAC requests.
	SealedSecret string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *Client) Type() ClientType { return c.Profile.Type() }

func (c *Client) IsConfidential() bool { return c.Type() == ClientConfidential }

func (c *Client) PrincipalID() string { return c.ID }

func (c *Client) PrincipalType() string { return PrincipalClient }

func (c *Client) IsStaff() bool { return false }

// VerifySecret is false for public clients.
func (c *Client) VerifySecret(secret string) bool {
	if c.Secret == nil {
		return false
	}
	return c.Secret.Verify(secret)
}

// ClientRegistration is returned once at creation; the raw secret is not recoverable later.
type ClientRegistration struct {
	Client       *Client `json:"client"`
	ClientSecret string  `json:"client_secret,omitempty"`
}
