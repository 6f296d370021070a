package model

import "errors"

var (
	// Token store errors
	ErrTokenNotFound = errors.New("token not found")

	// Password policy errors
	ErrNoActivePolicy = errors.New("no active password policy")
)
