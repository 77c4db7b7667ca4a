package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// Session is one issued bearer token record. Token is only populated on the
// record returned by Issue; stored records carry the hash.
type Session struct {
	Token     string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config defines runtime configuration for the session store.
type Config struct {
	// TTL is the fixed lifetime of an issued token.
	TTL time.Duration

	// TokenBytes is the number of random bytes behind each opaque token.
	// 32 bytes = 256 bits of entropy.
	TokenBytes int

	// SweepInterval controls how often the background sweep evicts expired
	// records.
	SweepInterval time.Duration
}

// DefaultConfig returns production-safe defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           7 * 24 * time.Hour,
		TokenBytes:    32,
		SweepInterval: 60 * time.Second,
	}
}

// Validate checks config invariants.
func (c Config) Validate() error {
	if c.TTL <= 0 || c.SweepInterval <= 0 {
		return ErrConfig
	}
	// 128 bits is the floor for bearer-token entropy.
	if c.TokenBytes < 16 || c.TokenBytes > 64 {
		return ErrConfig
	}
	return nil
}

// newOpaqueToken returns a URL-safe random token and its storage hash.
func newOpaqueToken(nBytes int) (plain string, hashHex string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}
	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, HashTokenHex(plain), nil
}

// HashTokenHex returns the SHA-256 hex digest stored in place of the token.
func HashTokenHex(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
