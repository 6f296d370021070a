package model

const (
	PrincipalUser   = "user"
	PrincipalClient = "client"
)

// Principal is an identity resolved by authentication: a *User or a *Client.
type Principal interface {
	PrincipalID() string
	PrincipalType() string
	IsStaff() bool
}
