// Package crypto exposes the minimal primitives used by Marlin.
//
// Contents
//
//   - Identity and X25519 key generation, clamping and Diffie–Hellman
//     (GenerateIdentity, GenerateX25519, DH)
//   - Ed25519 signing and verification (Sign, Verify)
//   - Sealed boxes for sender-hiding encryption to a public key
//     (SealTo, Open) — the building block of wrap envelopes
//   - HKDF-SHA256 key expansion (DeriveKey)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions operate on fixed-size array types defined in internal/domain
// to avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on memzero.Zero when practical to reduce lifetime in
// memory.
package crypto
