package types

// GroupID identifies a cryptographic group session. It is assigned at group
// creation and never reused after the group is gone.
type GroupID string

// String returns the string form of the group identifier.
func (id GroupID) String() string { return string(id) }

// EnvelopeID uniquely identifies a relay event.
type EnvelopeID string

// String returns the string form of the envelope identifier.
func (id EnvelopeID) String() string { return string(id) }

// KeyPackageID uniquely identifies a published key package.
type KeyPackageID string

// String returns the string form of the key package identifier.
func (id KeyPackageID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
