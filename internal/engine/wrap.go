package engine

import (
	"encoding/json"

	"marlin/internal/crypto"
	"marlin/internal/domain"
)

// WrapRumor seals a rumor to sealKey inside a kind-1059 envelope tagged for
// recipient. For welcomes, sealKey is the invitee's key-package init key, so
// possession of the published key package is what admits its holder. The
// outer author is a throwaway key so network observers learn neither sender
// nor inner kind.
func (e *Engine) WrapRumor(recipient domain.PublicKey, sealKey domain.X25519Public, r domain.Rumor) (domain.Envelope, error) {
	inner, err := json.Marshal(r)
	if err != nil {
		return domain.Envelope{}, err
	}
	sealed, err := crypto.SealTo(sealKey, inner, infoWrap)
	if err != nil {
		return domain.Envelope{}, err
	}

	_, throwaway, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		ID:        newEnvelopeID(),
		Kind:      domain.KindWrap,
		Author:    domain.PublicKey(throwaway),
		CreatedAt: now(),
		Recipient: recipient.Hex(),
		Payload:   sealed,
	}, nil
}

// UnwrapWelcome opens a wrap envelope addressed to this identity and applies
// the inner welcome, storing the joined group with a pending commit. The
// payload is sealed to one of our published key packages, so opening tries
// each locally stored init private key; holding the identity key alone is
// not enough. The caller must merge the commit before the group is usable.
// Replays of an already-applied welcome return the stored group unchanged.
func (e *Engine) UnwrapWelcome(env domain.Envelope) (domain.GroupJoinResult, error) {
	if env.Kind != domain.KindWrap {
		return domain.GroupJoinResult{}, domain.Violation("not a wrap envelope", nil)
	}
	if env.Recipient != e.id.PublicKey().Hex() {
		return domain.GroupJoinResult{}, domain.Violation("wrap not addressed to this identity", nil)
	}

	pairs, err := e.store.ListKeyPackages()
	if err != nil {
		return domain.GroupJoinResult{}, domain.Storage("list key packages", err)
	}
	var (
		inner  []byte
		opener domain.KeyPackageID
	)
	for _, p := range pairs {
		pt, err := crypto.Open(p.InitPriv, env.Payload, infoWrap)
		if err != nil {
			continue
		}
		inner = pt
		opener = p.ID
		break
	}
	if inner == nil {
		return domain.GroupJoinResult{}, domain.Violation("wrap does not open for any stored key package", nil)
	}
	var r domain.Rumor
	if err := json.Unmarshal(inner, &r); err != nil {
		return domain.GroupJoinResult{}, domain.Violation("malformed inner rumor", err)
	}
	if r.Kind != domain.KindWelcome {
		return domain.GroupJoinResult{}, domain.Violation("inner rumor is not a welcome", nil)
	}
	var wp welcomePayload
	if err := json.Unmarshal(r.Payload, &wp); err != nil {
		return domain.GroupJoinResult{}, domain.Violation("malformed welcome payload", err)
	}
	if wp.GroupID == "" || wp.WireID == "" {
		return domain.GroupJoinResult{}, domain.Violation("welcome missing group identifiers", nil)
	}

	g := domain.GroupState{
		ID:            wp.GroupID,
		WireID:        wp.WireID,
		Name:          wp.Name,
		Creator:       wp.Creator,
		Members:       wp.Members,
		Epoch:         wp.Epoch,
		Secret:        wp.Secret,
		PendingCommit: true,
	}
	if !g.HasMember(e.id.PublicKey()) {
		return domain.GroupJoinResult{}, domain.Violation("welcome does not include this identity", nil)
	}

	// Replay: the group already exists, keep the stored state.
	if existing, ok, err := e.store.LoadGroup(g.ID); err != nil {
		return domain.GroupJoinResult{}, domain.Storage("load group", err)
	} else if ok {
		return domain.GroupJoinResult{Group: existing, Inviter: r.Author}, nil
	}

	if err := e.store.SaveGroup(g); err != nil {
		return domain.GroupJoinResult{}, domain.Storage("save group", err)
	}
	// The key package that carried us into this group is now spent.
	if _, err := e.store.MarkConsumed(opener); err != nil {
		e.log.Warn("mark key package consumed", "id", opener, "err", err)
	}
	e.log.Info("joined group via welcome", "group", g.ID, "epoch", g.Epoch)
	return domain.GroupJoinResult{Group: g, Inviter: r.Author}, nil
}
