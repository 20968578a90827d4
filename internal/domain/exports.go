package domain

import (
	interfaces "marlin/internal/domain/interfaces"
	types "marlin/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	GroupID         = types.GroupID
	EnvelopeID      = types.EnvelopeID
	KeyPackageID    = types.KeyPackageID
	Fingerprint     = types.Fingerprint
	PublicKey       = types.PublicKey
	Identity        = types.Identity
	KeyPackage      = types.KeyPackage
	KeyPackagePair  = types.KeyPackagePair
	Envelope        = types.Envelope
	EnvelopeKind    = types.EnvelopeKind
	Rumor           = types.Rumor
	Filter          = types.Filter
	GroupState      = types.GroupState
	GroupJoinResult = types.GroupJoinResult
	WelcomeRumor    = types.WelcomeRumor
	Message         = types.Message
	AppState        = types.AppState
	Phase           = types.Phase
	X25519Public    = types.X25519Public
	X25519Private   = types.X25519Private
	Ed25519Public   = types.Ed25519Public
	Ed25519Private  = types.Ed25519Private
)

// Envelope kind constants re-exported for compact imports.
const (
	KindKeyPackage   = types.KindKeyPackage
	KindWelcome      = types.KindWelcome
	KindGroupMessage = types.KindGroupMessage
	KindWrap         = types.KindWrap
)

// Phase constants re-exported for compact imports.
const (
	PhaseInitializing = types.PhaseInitializing
	PhaseReady        = types.PhaseReady
	PhaseInGroup      = types.PhaseInGroup
)

// ParsePublicKey re-exports hex public key parsing.
func ParsePublicKey(s string) (PublicKey, bool) { return types.ParsePublicKey(s) }

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Engine          = interfaces.Engine
	RelayClient     = interfaces.RelayClient
	IdentityStore   = interfaces.IdentityStore
	KeyPackageStore = interfaces.KeyPackageStore
	GroupStore      = interfaces.GroupStore
	MessageStore    = interfaces.MessageStore
	Store           = interfaces.Store
)
