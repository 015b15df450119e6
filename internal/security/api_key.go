package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// apiKeyPrefix is the prefix used for generated API keys.
const apiKeyPrefix = "sk-"

// GenerateAPIKey creates a new random API key string.
func GenerateAPIKey() (string, error) {
	secret := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(secret), nil
}

// HashAPIKey returns the SHA-256 hex digest used to look keys up.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the display prefix for a full API key.
func KeyPrefix(key string) string {
	if len(key) <= 11 {
		return key
	}
	return key[:11] + "..."
}

// GenerateInviteCode returns a short random invite code.
func GenerateInviteCode() (string, error) {
	raw := make([]byte, 5)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
