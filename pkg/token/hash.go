package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short, non-reversible identifier for a secret key,
// safe to print in logs and CLI output.
func Fingerprint(key []byte) string {
	h := sha256.Sum256(key)
	return hex.EncodeToString(h[:8])
}

// GenerateKey returns a new random secret key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
