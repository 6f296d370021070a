package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// randomToken returns n bytes from crypto/rand, URL-safe base64 encoded without padding.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
