// Package crypto exposes the minimal primitives used by omemo.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Wire identity keys: X25519 public followed by Ed25519 public
//     (IdentityKey, ParseIdentityKey)
//   - Message payload encryption with AES-128-GCM and a detached 16-byte tag
//     (GeneratePayloadKey, GenerateIV, SealPayload, OpenPayload)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All key functions return fixed-size array types defined in internal/domain
// to avoid accidental reallocations.
package crypto
