// Package sha256 derives hex SHA-256 digests used as admin session tokens.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements auth.TokenHasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SessionToken digests "username:password".
func (*Hasher) SessionToken(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}
