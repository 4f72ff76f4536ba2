// Package checksum computes the version tokens used for conditional writes.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether data still has the given version token. An empty
// token never matches, so callers cannot write blind.
func Matches(data []byte, token string) bool {
	return token != "" && Sum(data) == token
}
