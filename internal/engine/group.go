package engine

import (
	"crypto/rand"
	"encoding/json"

	"github.com/google/uuid"

	"marlin/internal/crypto"
	"marlin/internal/domain"
)

// welcomePayload is the inner welcome rumor body. It carries everything a
// joiner needs to reconstruct the group at the given epoch.
type welcomePayload struct {
	GroupID      domain.GroupID      `json:"group_id"`
	WireID       string              `json:"wire_id"`
	Name         string              `json:"name"`
	Creator      domain.PublicKey    `json:"creator"`
	Members      []domain.PublicKey  `json:"members"`
	Epoch        uint64              `json:"epoch"`
	Secret       [32]byte            `json:"secret"`
	KeyPackageID domain.KeyPackageID `json:"key_package_id"`
}

// CreateGroup forms a new two-member group with the invitee. The creator's
// copy is stored with a pending commit; the invitee gets a welcome rumor to
// be wrapped and published. The invitee's key package is consumed by this
// call on the sender side only — the invitee marks its own copy when the
// welcome applies.
func (e *Engine) CreateGroup(name string, invitee domain.KeyPackage) (domain.GroupID, domain.WelcomeRumor, error) {
	if !verifyKeyPackage(invitee) {
		return "", domain.WelcomeRumor{}, domain.Violation("invitee key package has a bad signature", nil)
	}

	g := domain.GroupState{
		ID:            domain.GroupID(uuid.NewString()),
		WireID:        uuid.NewString(),
		Name:          name,
		Creator:       e.id.PublicKey(),
		Members:       []domain.PublicKey{e.id.PublicKey(), invitee.Owner},
		Epoch:         0,
		PendingCommit: true,
	}
	if _, err := rand.Read(g.Secret[:]); err != nil {
		return "", domain.WelcomeRumor{}, err
	}

	if err := e.store.SaveGroup(g); err != nil {
		return "", domain.WelcomeRumor{}, domain.Storage("save group", err)
	}

	welcome, err := e.welcomeFor(g, invitee)
	if err != nil {
		return "", domain.WelcomeRumor{}, err
	}
	e.log.Info("created group", "group", g.ID, "invitee", invitee.Owner.Hex())
	return g.ID, welcome, nil
}

// AddMember invites one more participant into an existing group, advancing
// the epoch. Only the creator may invite. Existing members learn about the
// change through the returned update envelope, sealed under the outgoing
// epoch's key so everyone currently in the group can read it. The pending
// commit must be merged before the group is usable again.
func (e *Engine) AddMember(gid domain.GroupID, invitee domain.KeyPackage) (domain.WelcomeRumor, domain.Envelope, error) {
	if !verifyKeyPackage(invitee) {
		return domain.WelcomeRumor{}, domain.Envelope{}, domain.Violation("invitee key package has a bad signature", nil)
	}
	g, ok, err := e.store.LoadGroup(gid)
	if err != nil {
		return domain.WelcomeRumor{}, domain.Envelope{}, domain.Storage("load group", err)
	}
	if !ok {
		return domain.WelcomeRumor{}, domain.Envelope{}, domain.Violation("add member to unknown group "+gid.String(), nil)
	}
	if g.Creator != e.id.PublicKey() {
		return domain.WelcomeRumor{}, domain.Envelope{}, domain.Violation("only the group creator can invite members", nil)
	}
	if g.HasMember(invitee.Owner) {
		return domain.WelcomeRumor{}, domain.Envelope{}, domain.Violation("already a member", nil)
	}
	if g.PendingCommit {
		return domain.WelcomeRumor{}, domain.Envelope{}, domain.ErrEpochNotReady
	}

	update, g, err := e.sealBody(g, messageBody{Update: &memberUpdate{
		Member: invitee.Owner,
		Epoch:  g.Epoch + 1,
	}})
	if err != nil {
		return domain.WelcomeRumor{}, domain.Envelope{}, err
	}

	g.Members = append(g.Members, invitee.Owner)
	g.Epoch++
	g.PendingCommit = true
	if err := e.store.SaveGroup(g); err != nil {
		return domain.WelcomeRumor{}, domain.Envelope{}, domain.Storage("save group", err)
	}

	welcome, err := e.welcomeFor(g, invitee)
	if err != nil {
		return domain.WelcomeRumor{}, domain.Envelope{}, err
	}
	e.log.Info("added member", "group", g.ID, "member", invitee.Owner.Hex(), "epoch", g.Epoch)
	return welcome, update, nil
}

// welcomeFor builds the welcome rumor onboarding invitee into g's current
// epoch.
func (e *Engine) welcomeFor(g domain.GroupState, invitee domain.KeyPackage) (domain.WelcomeRumor, error) {
	payload, err := json.Marshal(welcomePayload{
		GroupID:      g.ID,
		WireID:       g.WireID,
		Name:         g.Name,
		Creator:      g.Creator,
		Members:      g.Members,
		Epoch:        g.Epoch,
		Secret:       g.Secret,
		KeyPackageID: invitee.ID,
	})
	if err != nil {
		return domain.WelcomeRumor{}, err
	}
	return domain.WelcomeRumor{
		Recipient: invitee.Owner,
		InitKey:   invitee.InitKey,
		Rumor: domain.Rumor{
			Kind:      domain.KindWelcome,
			Author:    e.id.PublicKey(),
			CreatedAt: now(),
			Payload:   payload,
		},
	}, nil
}

func verifyKeyPackage(kp domain.KeyPackage) bool {
	return len(kp.Signature) > 0 &&
		crypto.Verify(kp.SigningKey, keyPackageSigningBytes(kp), kp.Signature)
}
