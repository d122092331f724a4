// Package token derives and opens Sidus device authentication tokens.
//
// Token Format (before base64):
//
//   - Nonce: 12 random bytes
//   - Tag: 16-byte AES-256-GCM authentication tag
//   - Ciphertext: the decimal Unix second, e.g. "1718000000"
//
// Rules:
//
//   - The secret key is exactly 32 bytes
//   - A Generator issues at most one token per wall-clock second and
//     never goes back in time
//   - The device rejects tokens whose second is stale or reused
package token
