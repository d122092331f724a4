package adaptive

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha20 is ChaCha20-Poly1305. It seals profile secrets on hosts without
// AES acceleration; it cannot produce device tokens.
type ChaCha20 struct {
	sealer
}

// NewChaCha20 requires a 32-byte key.
func NewChaCha20(key []byte) (*ChaCha20, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("adaptive: ChaCha20-Poly1305 key is %d bytes, want %d", len(key), chacha20poly1305.KeySize)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &ChaCha20{sealer{aead: aead}}, nil
}

// Type returns CipherChaCha20.
func (*ChaCha20) Type() CipherType { return CipherChaCha20 }
