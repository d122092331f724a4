package token

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/yndnr/sidus-go/pkg/crypto/adaptive"
)

// Open authenticates a token and returns the Unix second it is bound to.
func Open(key []byte, tok string) (int64, error) {
	if len(key) != KeySize {
		return 0, ErrInvalidKey
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(tok))
	if err != nil {
		return 0, ErrMalformed
	}
	if len(raw) <= NonceSize+TagSize {
		return 0, ErrMalformed
	}

	c, err := adaptive.NewAESGCM(key)
	if err != nil {
		return 0, err
	}

	plaintext, err := c.OpenDetached(raw[:NonceSize], raw[NonceSize:NonceSize+TagSize], raw[NonceSize+TagSize:], nil)
	if err != nil {
		return 0, ErrAuthentication
	}

	second, err := strconv.ParseInt(string(plaintext), 10, 64)
	if err != nil {
		return 0, ErrMalformed
	}
	return second, nil
}

// DecodeKey decodes a base64 secret key and checks its length.
//
// Standard and URL alphabets are accepted, with or without padding.
func DecodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrInvalidKey
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(key) != KeySize {
			return nil, ErrInvalidKey
		}
		return key, nil
	}
	return nil, ErrInvalidKey
}

// EncodeKey returns the standard base64 form of a key.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
