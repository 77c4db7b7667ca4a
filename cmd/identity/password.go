package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Password length bounds. The upper bound caps hashing cost per request.
const (
	PasswordMinLen = 8
	PasswordMaxLen = 128
)

// Argon2Params are the Argon2id cost parameters baked into each PHC hash.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params follows the RFC 9106 low-memory recommendation.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// TestArgon2Params are weak parameters for fast unit tests only.
func TestArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// ValidatePassword checks length bounds only; composition rules are out of scope.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLen || len(password) > PasswordMaxLen {
		return OpError{Op: "identity.ValidatePassword", Kind: ErrInvalidInput, Msg: "password must be 8-128 characters"}
	}
	return nil
}

// HashPassword derives an Argon2id hash and encodes it in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt-b64>$<key-b64>
func HashPassword(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("identity: generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches the PHC-encoded hash.
// The comparison is constant-time over the derived keys.
func VerifyPassword(password, encoded string) (bool, error) {
	p, salt, key, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

// DummyVerify burns roughly the same CPU as a real verification so that login
// latency does not reveal whether a username exists.
func DummyVerify(password string, p Argon2Params) {
	salt := make([]byte, p.SaltLen)
	_ = argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLen)
}

func decodePHC(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, OpError{Op: "identity.decodePHC", Kind: ErrInvalidInput, Msg: "malformed password hash"}
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, OpError{Op: "identity.decodePHC", Kind: ErrInvalidInput, Msg: "malformed hash version"}
	}
	if version != argon2.Version {
		return p, nil, nil, OpError{Op: "identity.decodePHC", Kind: ErrInvalidInput, Msg: "unsupported argon2 version"}
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, OpError{Op: "identity.decodePHC", Kind: ErrInvalidInput, Msg: "malformed hash parameters"}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, OpError{Op: "identity.decodePHC", Kind: ErrInvalidInput, Msg: "malformed hash salt"}
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, OpError{Op: "identity.decodePHC", Kind: ErrInvalidInput, Msg: "malformed hash key"}
	}

	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
