package model

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters (OWASP minimum profile: 19 MiB, 2 passes, 1 lane).
const (
	argon2Time    = 2
	argon2Memory  = 19 * 1024
	argon2Threads = 1
	argon2KeyLen  = 32
	saltLen       = 16
)

var ErrEmptySecret = errors.New("secret cannot be empty")

// SecretCredential is the salted hash of a password or client secret. The raw secret is
// never stored.
type SecretCredential struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

// NewSecretCredential hashes secret under a fresh random salt.
func NewSecretCredential(secret string) (SecretCredential, error) {
	var c SecretCredential
	if err := c.Set(secret); err != nil {
		return SecretCredential{}, err
	}
	return c, nil
}

// Set replaces the salt and hash.
func (c *SecretCredential) Set(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	c.Salt = base64.RawStdEncoding.EncodeToString(salt)
	c.Hash = base64.RawStdEncoding.EncodeToString(derive(secret, salt))
	return nil
}

// Verify recomputes the hash with the stored salt and compares in constant time.
func (c SecretCredential) Verify(secret string) bool {
	if c.Salt == "" || c.Hash == "" {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(c.Salt)
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(c.Hash)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(derive(secret, salt), expected) == 1
}

func derive(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}
