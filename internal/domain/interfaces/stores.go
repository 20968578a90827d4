package interfaces

import domaintypes "marlin/internal/domain/types"

// IdentityStore persists the long-term identity keys at rest.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, bool, error)
}

// KeyPackageStore keeps locally-generated key packages, including the private
// init keys needed to open welcomes.
type KeyPackageStore interface {
	SaveKeyPackage(pair domaintypes.KeyPackagePair) error
	LoadKeyPackage(id domaintypes.KeyPackageID) (domaintypes.KeyPackagePair, bool, error)
	ListKeyPackages() ([]domaintypes.KeyPackagePair, error)
	// MarkConsumed atomically invalidates a key package once used in a group
	// creation. Returns false if it was already consumed or unknown.
	MarkConsumed(id domaintypes.KeyPackageID) (bool, error)
}

// GroupStore persists per-group protocol state.
type GroupStore interface {
	SaveGroup(g domaintypes.GroupState) error
	LoadGroup(id domaintypes.GroupID) (domaintypes.GroupState, bool, error)
	ListGroups() ([]domaintypes.GroupState, error)
	// LoadGroupByWireTag resolves the routing tag carried on group messages.
	LoadGroupByWireTag(tag string) (domaintypes.GroupState, bool, error)
	DeleteGroup(id domaintypes.GroupID) error
}

// MessageStore is the append-only per-group history.
type MessageStore interface {
	AppendMessage(m domaintypes.Message) error
	// HasMessage reports whether an envelope was already applied, keyed by
	// envelope id. Used to keep replays idempotent.
	HasMessage(id domaintypes.EnvelopeID) (bool, error)
	ListMessages(gid domaintypes.GroupID, limit int) ([]domaintypes.Message, error)
}

// Store is the uniform persistence contract behind the session core. Two
// interchangeable implementations exist (volatile and durable); the core
// never learns which one it got.
type Store interface {
	IdentityStore
	KeyPackageStore
	GroupStore
	MessageStore
	Close() error
}
