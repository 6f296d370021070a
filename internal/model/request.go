package model

type CreateUserRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required"`
	Profile  UserProfile `json:"profile"`
}

// TokenRequest carries the form parameters of the token endpoint.
type TokenRequest struct {
	GrantType    string
	Code         string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// AuthorizeRequest carries the query/form parameters of the authorize endpoint.
type AuthorizeRequest struct {
	ClientID            string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
}

type RevokeRequest struct {
	Token string
}

type CreatePolicyRequest struct {
	PasswordPolicy
	Activate bool `json:"activate"`
}
