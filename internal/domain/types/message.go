package types

// Message is a decrypted application payload bound to its group, sender and
// a monotonic-within-epoch sequence. Never mutated after append.
type Message struct {
	EnvelopeID EnvelopeID `json:"envelope_id"`
	GroupID    GroupID    `json:"group_id"`
	Sender     PublicKey  `json:"sender"`
	Epoch      uint64     `json:"epoch"`
	Seq        uint64     `json:"seq"`
	Content    string     `json:"content"`
	CreatedAt  int64      `json:"created_at"`

	// Update marks a membership-change record carried in-band rather than
	// chat content. The receiving side must merge the pending commit the
	// change leaves behind.
	Update bool `json:"update,omitempty"`
}
