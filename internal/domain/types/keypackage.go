package types

// KeyPackage is the published material that lets a third party invite its
// owner into a group. Lifecycle: Published -> Consumed (once used in a group
// creation) -> optionally republished as a fresh package.
type KeyPackage struct {
	ID         KeyPackageID `json:"id"`
	Owner      PublicKey    `json:"owner"`
	SigningKey Ed25519Public `json:"signing_key"`
	InitKey    X25519Public `json:"init_key"`
	Signature  []byte       `json:"signature"`
	CreatedAt  int64        `json:"created_at"`
}

// KeyPackagePair is the local record for a key package we published: the wire
// form plus the init private key needed to open welcomes addressed to it.
// The private half never leaves the store.
type KeyPackagePair struct {
	KeyPackage
	InitPriv X25519Private
	Consumed bool
}
