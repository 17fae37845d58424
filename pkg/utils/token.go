package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateInviteToken returns a URL-safe random token for invitation links.
// 24 random bytes give 32 base64url characters.
func GenerateInviteToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
