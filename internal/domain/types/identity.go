package types

// Identity carries a participant's long-term key material: an X25519 pair for
// Diffie-Hellman and an Ed25519 pair for signatures. It is generated once and
// owned exclusively by the session that generated it.
type Identity struct {
	XPriv X25519Private
	XPub  X25519Public

	EdPriv Ed25519Private
	EdPub  Ed25519Public
}

// PublicKey returns the identity's relay address.
func (id Identity) PublicKey() PublicKey { return PublicKey(id.XPub) }
