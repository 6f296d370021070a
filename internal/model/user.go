package model

import (
	"strings"
	"time"
)

type User struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	EmailVerified  bool             `json:"email_verified"`
	Password       SecretCredential `json:"-"`
	Staff          bool             `json:"is_staff"`
	FailedAttempts int              `json:"-"`
	LockoutUntil   *time.Time       `json:"-"`
	Profile        UserProfile      `json:"profile"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (u *User) PrincipalID() string { return u.ID }

func (u *User) PrincipalType() string { return PrincipalUser }

func (u *User) IsStaff() bool { return u.Staff }

// IsLockedOut reports whether a lockout is still running at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}

// UserProfile holds the OpenID Connect standard claims a user may fill in.
type UserProfile struct {
	Name                string  `json:"name,omitempty"`
	GivenName           string  `json:"given_name,omitempty"`
	FamilyName          string  `json:"family_name,omitempty"`
	MiddleName          string  `json:"middle_name,omitempty"`
	Nickname            string  `json:"nickname,omitempty"`
	PreferredUsername   string  `json:"preferred_username,omitempty"`
	Picture             string  `json:"picture,omitempty"`
	Website             string  `json:"website,omitempty"`
	Gender              string  `json:"gender,omitempty"`
	Birthdate           string  `json:"birthdate,omitempty"`
	Zoneinfo            string  `json:"zoneinfo,omitempty"`
	Locale              string  `json:"locale,omitempty"`
	PhoneNumber         string  `json:"phone_number,omitempty"`
	PhoneNumberVerified bool    `json:"phone_number_verified,omitempty"`
	Address             Address `json:"address"`
}

type Address struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// Userinfo scopes.
const (
	ScopeProfile = "profile"
	ScopeEmail   = "email"
	ScopeAddress = "address"
	ScopePhone   = "phone"
)

// Claims returns the userinfo claims released for the given space-delimited scope.
// An empty scope releases every claim group.
func (u *User) Claims(scope string) map[string]any {
	scopes := strings.Fields(scope)
	if len(scopes) == 0 {
		scopes = []string{ScopeProfile, ScopeEmail, ScopeAddress, ScopePhone}
	}

	claims := map[string]any{"sub": u.ID}
	p := u.Profile
	for _, s := range scopes {
		switch s {
		case ScopeProfile:
			putString(claims, "name", p.Name)
			putString(claims, "given_name", p.GivenName)
			putString(claims, "family_name", p.FamilyName)
			putString(claims, "middle_name", p.MiddleName)
			putString(claims, "nickname", p.Nickname)
			putString(claims, "preferred_username", p.PreferredUsername)
			putString(claims, "picture", p.Picture)
			putString(claims, "website", p.Website)
			putString(claims, "gender", p.Gender)
			putString(claims, "birthdate", p.Birthdate)
			putString(claims, "zoneinfo", p.Zoneinfo)
			putString(claims, "locale", p.Locale)
			claims["updated_at"] = u.UpdatedAt.Unix()
		case ScopeEmail:
			claims["email"] = u.Email
			claims["email_verified"] = u.EmailVerified
		case ScopeAddress:
			if !p.Address.IsZero() {
				claims["address"] = p.Address
			}
		case ScopePhone:
			if p.PhoneNumber != "" {
				claims["phone_number"] = p.PhoneNumber
				claims["phone_number_verified"] = p.PhoneNumberVerified
			}
		}
	}

	return claims
}

func putString(m map[string]any, key string, value string) {
	if value != "" {
		m[key] = value
	}
}

// AuthUser is the public view of a principal returned by the API.
type AuthUser struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Email   string `json:"email,omitempty"`
	AppName string `json:"app_name,omitempty"`
	IsStaff bool   `json:"is_staff"`
}

func NewAuthUser(p Principal) AuthUser {
	out := AuthUser{ID: p.PrincipalID(), Type: p.PrincipalType(), IsStaff: p.IsStaff()}
	switch v := p.(type) {
	case *User:
		out.Email = v.Email
	case *Client:
		out.AppName = v.AppName
	}
	return out
}
