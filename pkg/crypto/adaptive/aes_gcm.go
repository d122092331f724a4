package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// AESGCM is AES-GCM with a 12-byte nonce and 16-byte tag, the layout Sidus
// tokens use.
type AESGCM struct {
	sealer
}

// NewAESGCM accepts 16, 24 or 32-byte keys. Sidus device keys are 32
// bytes (AES-256).
func NewAESGCM(key []byte) (*AESGCM, error) {
	if n := len(key); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("adaptive: AES-GCM key is %d bytes, want 16, 24 or 32", n)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{sealer{aead: aead}}, nil
}

// Type returns CipherAESGCM.
func (*AESGCM) Type() CipherType { return CipherAESGCM }
