package types

// GroupState is the per-group mutable record held by the session core and the
// store. Epoch is monotonically non-decreasing; while PendingCommit is set the
// group cannot send or accept messages in the current epoch.
type GroupState struct {
	ID      GroupID     `json:"id"`
	WireID  string      `json:"wire_id"` // routing tag carried on group messages
	Name    string      `json:"name"`
	Creator PublicKey   `json:"creator"`
	Members []PublicKey `json:"members"`

	Epoch         uint64 `json:"epoch"`
	PendingCommit bool   `json:"pending_commit"`

	// Secret seeds the per-epoch message keys. Local only.
	Secret [32]byte `json:"secret"`

	// NextSeq is the next outbound message sequence within the epoch.
	NextSeq uint64 `json:"next_seq"`
}

// HasMember reports whether pk is in the member set.
func (g GroupState) HasMember(pk PublicKey) bool {
	for _, m := range g.Members {
		if m == pk {
			return true
		}
	}
	return false
}

// GroupJoinResult is what unwrapping a welcome yields: the joined group state,
// stored with a pending commit that must be merged before use.
type GroupJoinResult struct {
	Group   GroupState
	Inviter PublicKey
}

// WelcomeRumor is a welcome ready to be wrapped and published. Recipient is
// the relay address the wrap is tagged with; InitKey is the key-package init
// key the payload is sealed to, so only the holder of the matching private
// half can open it.
type WelcomeRumor struct {
	Recipient PublicKey
	InitKey   X25519Public
	Rumor     Rumor
}
