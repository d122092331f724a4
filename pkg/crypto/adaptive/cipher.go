package adaptive

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"runtime"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

var (
	// ErrCiphertextTooShort is returned when the input cannot hold a nonce and tag.
	ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")

	// ErrInvalidNonce is returned when a detached nonce has the wrong size.
	ErrInvalidNonce = errors.New("adaptive: invalid nonce size")

	// ErrInvalidTag is returned when a detached tag has the wrong size.
	ErrInvalidTag = errors.New("adaptive: invalid tag size")
)

// Cipher provides authenticated encryption.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Encrypt encrypts plaintext and returns nonce || ciphertext || tag.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt reverses Encrypt.
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)

	// SealDetached encrypts plaintext under a fresh random nonce and returns
	// the nonce, the authentication tag and the ciphertext separately.
	SealDetached(plaintext, additionalData []byte) (nonce, tag, ciphertext []byte, err error)

	// OpenDetached authenticates and decrypts the parts produced by SealDetached.
	OpenDetached(nonce, tag, ciphertext, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce size in bytes.
	NonceSize() int

	// Overhead returns the authentication tag size in bytes.
	Overhead() int
}

// New creates a new adaptive cipher with the given key.
//
// It automatically selects the optimal algorithm based on hardware.
func New(key []byte) (Cipher, error) {
	if hasAESNI() {
		return NewAESGCM(key)
	}
	return NewChaCha20(key)
}

// NewWithType creates a cipher of the specified type.
func NewWithType(key []byte, cipherType CipherType) (Cipher, error) {
	switch cipherType {
	case CipherAESGCM:
		return NewAESGCM(key)
	case CipherChaCha20:
		return NewChaCha20(key)
	default:
		return nil, errors.New("unknown cipher type: " + string(cipherType))
	}
}

// hasAESNI reports whether crypto/aes runs hardware accelerated on this arch.
func hasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

// sealer implements everything in Cipher except Type on top of an AEAD.
type sealer struct {
	aead cipher.AEAD
}

// NonceSize returns the nonce size in bytes.
func (s sealer) NonceSize() int { return s.aead.NonceSize() }

// Overhead returns the authentication tag size in bytes.
func (s sealer) Overhead() int { return s.aead.Overhead() }

func (s sealer) newNonce() ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// Encrypt seals plaintext under a fresh nonce and returns
// nonce || ciphertext || tag.
func (s sealer) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce, err := s.newNonce()
	if err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Decrypt reverses Encrypt.
func (s sealer) Decrypt(sealed, additionalData []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return s.aead.Open(nil, sealed[:n], sealed[n:], additionalData)
}

// SealDetached splits Go's ciphertext||tag output so callers can lay the
// parts out in the order their wire format requires.
func (s sealer) SealDetached(plaintext, additionalData []byte) (nonce, tag, ciphertext []byte, err error) {
	nonce, err = s.newNonce()
	if err != nil {
		return nil, nil, nil, err
	}

	out := s.aead.Seal(nil, nonce, plaintext, additionalData)
	split := len(out) - s.aead.Overhead()
	return nonce, out[split:], out[:split], nil
}

// OpenDetached authenticates and decrypts the parts from SealDetached.
func (s sealer) OpenDetached(nonce, tag, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != s.aead.NonceSize() {
		return nil, ErrInvalidNonce
	}
	if len(tag) != s.aead.Overhead() {
		return nil, ErrInvalidTag
	}

	joined := make([]byte, 0, len(ciphertext)+len(tag))
	joined = append(joined, ciphertext...)
	joined = append(joined, tag...)
	return s.aead.Open(nil, nonce, joined, additionalData)
}
