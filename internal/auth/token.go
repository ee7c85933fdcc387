package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SecretLength is the length of an opaque secret in its hex form.
const SecretLength = 64

// NewSecret returns a fresh opaque secret and its digest. The secret is
// 32 bytes of crypto/rand entropy, hex encoded; only the digest may be
// persisted.
func NewSecret() (secret, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	return secret, HashSecret(secret), nil
}

// HashSecret returns the hex-encoded SHA-256 digest of a secret. The
// digest is deterministic so it can serve as an indexed lookup key.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ValidSecretShape reports whether s looks like a secret this package
// issued: exactly 64 lowercase hex characters. Used to reject garbage
// before touching the store.
func ValidSecretShape(s string) bool {
	if len(s) != SecretLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
