// Package digest fingerprints persisted artifacts so reruns can be compared.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 implements extract.Hasher.
type SHA256 struct{}

// New returns a SHA-256 hasher.
func New() SHA256 {
	return SHA256{}
}

// Hash returns the lowercase hex SHA-256 of data.
func (SHA256) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
