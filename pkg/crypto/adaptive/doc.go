// Package adaptive provides the AEAD primitives used by sidus-go.
//
// Two layouts are supported:
//
//   - Encrypt/Decrypt: nonce || ciphertext || tag, used for sealing
//     secrets at rest (CLI profile store).
//   - SealDetached/OpenDetached: nonce, tag and ciphertext as separate
//     slices, used where the wire format orders them differently
//     (device authentication tokens put the tag before the ciphertext).
//
// Algorithms:
//
//   - AES-256-GCM: preferred when hardware AES support is available,
//     and mandatory for device tokens
//   - ChaCha20-Poly1305: fallback for systems without AES-NI
//
// Usage:
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
