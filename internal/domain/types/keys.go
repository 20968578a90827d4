package types

import "encoding/hex"

// PublicKey is a participant's Curve25519 identity public key. It doubles as
// the author/recipient address on relay envelopes.
type PublicKey [32]byte

// Slice returns the key as a []byte.
func (p PublicKey) Slice() []byte { return p[:] }

// Hex returns the lowercase hex encoding used on the wire.
func (p PublicKey) Hex() string { return hex.EncodeToString(p[:]) }

// ParsePublicKey decodes a 64-char hex string into a PublicKey.
func ParsePublicKey(s string) (PublicKey, bool) {
	var p PublicKey
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(p) {
		return p, false
	}
	copy(p[:], b)
	return p, true
}

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }
