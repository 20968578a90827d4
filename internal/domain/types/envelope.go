package types

// EnvelopeKind discriminates relay events on the wire.
type EnvelopeKind uint16

const (
	// KindKeyPackage is a public key package advertisement.
	KindKeyPackage EnvelopeKind = 443
	// KindWelcome is the inner welcome rumor that onboards a member into a
	// group. It only travels inside a KindWrap envelope.
	KindWelcome EnvelopeKind = 444
	// KindGroupMessage is a group-bound encrypted message. It carries the
	// group routing tag in the clear so receivers can route without
	// decrypting.
	KindGroupMessage EnvelopeKind = 445
	// KindWrap is the outer encrypted layer hiding the inner kind and payload
	// from everyone but the tagged recipient.
	KindWrap EnvelopeKind = 1059
)

// Envelope is a relay event, inbound or outbound. It is immutable once
// received; ownership transfers to the session core on ingestion.
type Envelope struct {
	ID        EnvelopeID   `json:"id"`
	Kind      EnvelopeKind `json:"kind"`
	Author    PublicKey    `json:"author"`
	CreatedAt int64        `json:"created_at"`

	// Recipient is set on wrap envelopes ("p" tag).
	Recipient string `json:"recipient,omitempty"`
	// GroupTag is set on group messages ("h" tag). It is a routing alias,
	// not the MLS group id.
	GroupTag string `json:"group_tag,omitempty"`

	Payload []byte `json:"payload"`
}

// Rumor is an unsigned inner event carried inside a wrap envelope.
type Rumor struct {
	Kind      EnvelopeKind `json:"kind"`
	Author    PublicKey    `json:"author"`
	CreatedAt int64        `json:"created_at"`
	Payload   []byte       `json:"payload"`
}

// Filter selects relay events by kind, author, recipient tag or group tag.
// Zero fields match everything.
type Filter struct {
	Kinds     []EnvelopeKind `json:"kinds,omitempty"`
	Authors   []PublicKey    `json:"authors,omitempty"`
	Recipient string         `json:"recipient,omitempty"`
	GroupTag  string         `json:"group_tag,omitempty"`
	Since     int64          `json:"since,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

// Matches reports whether env passes the filter.
func (f Filter) Matches(env Envelope) bool {
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if env.Kind == k {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Authors) > 0 {
		ok := false
		for _, a := range f.Authors {
			if env.Author == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Recipient != "" && env.Recipient != f.Recipient {
		return false
	}
	if f.GroupTag != "" && env.GroupTag != f.GroupTag {
		return false
	}
	if f.Since > 0 && env.CreatedAt < f.Since {
		return false
	}
	return true
}
