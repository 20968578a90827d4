package interfaces

import domaintypes "marlin/internal/domain/types"

// Engine is the cryptographic group-protocol capability consumed by the
// session core. Implementations own key schedule and epoch algebra; the core
// only sequences calls.
type Engine interface {
	// GenerateKeyPackage mints a fresh key package, persists its private
	// half and returns the wire form for publication.
	GenerateKeyPackage() (domaintypes.KeyPackage, error)

	// AdvertiseKeyPackage builds the publishable advertisement envelope for
	// a key package.
	AdvertiseKeyPackage(kp domaintypes.KeyPackage) (domaintypes.Envelope, error)

	// ParseKeyPackage validates a fetched key package advertisement,
	// including its signature.
	ParseKeyPackage(env domaintypes.Envelope) (domaintypes.KeyPackage, error)

	// CreateGroup forms a new group with the invitee identified by its key
	// package. The returned welcome must be wrapped and published; the local
	// group state is stored with a pending commit.
	CreateGroup(name string, invitee domaintypes.KeyPackage) (domaintypes.GroupID, domaintypes.WelcomeRumor, error)

	// AddMember invites one more participant into an existing group and
	// advances the epoch, leaving a pending commit to merge. It returns the
	// welcome for the invitee plus a group-message envelope, sealed under
	// the outgoing epoch, that tells existing members about the change.
	// Both must be published.
	AddMember(gid domaintypes.GroupID, invitee domaintypes.KeyPackage) (domaintypes.WelcomeRumor, domaintypes.Envelope, error)

	// WrapRumor seals a rumor to sealKey inside a wrap envelope tagged for
	// recipient, hiding kind and payload from everyone else.
	WrapRumor(recipient domaintypes.PublicKey, sealKey domaintypes.X25519Public, r domaintypes.Rumor) (domaintypes.Envelope, error)

	// UnwrapWelcome opens a wrap envelope addressed to this identity using
	// the init private key of a locally stored key package, validates the
	// inner welcome and stores the joined group with a pending commit. The
	// opening key package is marked consumed. Replaying the same welcome
	// yields the already-joined group.
	UnwrapWelcome(env domaintypes.Envelope) (domaintypes.GroupJoinResult, error)

	// MergePendingCommit derives the epoch message keys and clears the
	// pending-commit flag. Until merged the group can neither send nor
	// accept messages.
	MergePendingCommit(gid domaintypes.GroupID) error

	// EncryptMessage produces a publishable group-message envelope.
	EncryptMessage(gid domaintypes.GroupID, plaintext []byte) (domaintypes.Envelope, error)

	// DecryptEnvelope opens a group-message envelope routed by its group
	// tag.
	DecryptEnvelope(env domaintypes.Envelope) (domaintypes.Message, error)
}
