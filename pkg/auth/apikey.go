package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// KeyPrefix identifies Gatehouse API keys
	KeyPrefix = "gh_"
	// KeyLength is the total length of random bytes (32 bytes = 256 bits)
	KeyLength = 32
)

// APIKey is the stored record for an issued API key. The key itself is
// never persisted; only its SHA-256 hash is.
type APIKey struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	UserID    string     `json:"user_id"`
	KeyHash   string     `json:"-"` // Never expose hash
	KeyPrefix string     `json:"key_prefix"`
	Name      string     `json:"name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// KeyGenerator generates and hashes API keys
type KeyGenerator struct{}

// NewKeyGenerator creates a new key generator
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// GenerateKey creates a new API key
// Format: gh_<base64url(32 random bytes)>
func (kg *KeyGenerator) GenerateKey() (key string, keyHash string, keyPrefix string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := KeyPrefix + encoded

	// Extract prefix (first 8 chars after "gh_") for identification in
	// listings without exposing the key
	prefix := KeyPrefix
	if len(encoded) >= 8 {
		prefix += encoded[:8]
	}

	return fullKey, HashKey(fullKey), prefix, nil
}

// HashKey returns the hex-encoded SHA-256 hash of a presented key. The
// hash is the lookup column in the key store.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
