package engine

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"

	"golang.org/x/crypto/chacha20poly1305"

	"marlin/internal/domain"
	"marlin/internal/util/memzero"
)

// messagePayload is the kind-445 envelope body: AEAD ciphertext under the
// group's epoch key plus the cleartext routing metadata the AEAD binds.
type messagePayload struct {
	Sender domain.PublicKey `json:"sender"`
	Epoch  uint64           `json:"epoch"`
	Seq    uint64           `json:"seq"`
	Nonce  []byte           `json:"nonce"`
	Cipher []byte           `json:"cipher"`
}

// messageBody is the decrypted frame: either chat text or an in-band
// membership update from the creator.
type messageBody struct {
	Text   string        `json:"text,omitempty"`
	Update *memberUpdate `json:"update,omitempty"`
}

// memberUpdate announces that Member joins at Epoch. It travels sealed under
// the previous epoch's key so every current member can read it.
type memberUpdate struct {
	Member domain.PublicKey `json:"member"`
	Epoch  uint64           `json:"epoch"`
}

// additionalData binds ciphertexts to their group, epoch and sequence.
func additionalData(wireID string, sender domain.PublicKey, epoch, seq uint64) []byte {
	ad := make([]byte, 0, len(wireID)+32+16)
	ad = append(ad, wireID...)
	ad = append(ad, sender.Slice()...)
	var n [16]byte
	binary.BigEndian.PutUint64(n[:8], epoch)
	binary.BigEndian.PutUint64(n[8:], seq)
	return append(ad, n[:]...)
}

// sealBody encrypts body for g's current epoch and returns the publishable
// envelope plus the group state with the outbound sequence consumed. The
// caller persists the returned state.
func (e *Engine) sealBody(g domain.GroupState, body messageBody) (domain.Envelope, domain.GroupState, error) {
	key, err := epochKey(g)
	if err != nil {
		return domain.Envelope{}, g, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return domain.Envelope{}, g, err
	}

	pt, err := json.Marshal(body)
	if err != nil {
		return domain.Envelope{}, g, err
	}
	seq := g.NextSeq
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return domain.Envelope{}, g, err
	}
	me := e.id.PublicKey()
	ct := aead.Seal(nil, nonce, pt, additionalData(g.WireID, me, g.Epoch, seq))
	g.NextSeq = seq + 1

	payload, err := json.Marshal(messagePayload{
		Sender: me,
		Epoch:  g.Epoch,
		Seq:    seq,
		Nonce:  nonce,
		Cipher: ct,
	})
	if err != nil {
		return domain.Envelope{}, g, err
	}
	return domain.Envelope{
		ID:        newEnvelopeID(),
		Kind:      domain.KindGroupMessage,
		Author:    me,
		CreatedAt: now(),
		GroupTag:  g.WireID,
		Payload:   payload,
	}, g, nil
}

// EncryptMessage encrypts plaintext for the group's current epoch and
// returns the publishable kind-445 envelope. Fails with ErrEpochNotReady
// while a pending commit is unmerged.
func (e *Engine) EncryptMessage(gid domain.GroupID, plaintext []byte) (domain.Envelope, error) {
	g, ok, err := e.store.LoadGroup(gid)
	if err != nil {
		return domain.Envelope{}, domain.Storage("load group", err)
	}
	if !ok {
		return domain.Envelope{}, domain.Violation("encrypt for unknown group "+gid.String(), nil)
	}
	if g.PendingCommit {
		return domain.Envelope{}, domain.ErrEpochNotReady
	}

	env, g, err := e.sealBody(g, messageBody{Text: string(plaintext)})
	if err != nil {
		return domain.Envelope{}, err
	}
	if err := e.store.SaveGroup(g); err != nil {
		return domain.Envelope{}, domain.Storage("save group", err)
	}
	return env, nil
}

// DecryptEnvelope opens a kind-445 envelope routed by its group tag. A
// message from an epoch ahead of the local state fails with ErrEpochNotReady
// so the caller can hold it until the intervening commits arrive. Membership
// updates are applied to the stored group (leaving a pending commit) and
// come back flagged as Update.
func (e *Engine) DecryptEnvelope(env domain.Envelope) (domain.Message, error) {
	if env.Kind != domain.KindGroupMessage {
		return domain.Message{}, domain.Violation("not a group message", nil)
	}
	g, ok, err := e.store.LoadGroupByWireTag(env.GroupTag)
	if err != nil {
		return domain.Message{}, domain.Storage("load group by tag", err)
	}
	if !ok {
		return domain.Message{}, domain.Violation("message for unknown group tag", nil)
	}
	if g.PendingCommit {
		return domain.Message{}, domain.ErrEpochNotReady
	}

	var mp messagePayload
	if err := json.Unmarshal(env.Payload, &mp); err != nil {
		return domain.Message{}, domain.Violation("malformed message payload", err)
	}
	if mp.Epoch > g.Epoch {
		// We are behind on commits for this group.
		return domain.Message{}, domain.ErrEpochNotReady
	}
	if !g.HasMember(mp.Sender) {
		return domain.Message{}, domain.Violation("sender is not a group member", nil)
	}

	keyed := g
	keyed.Epoch = mp.Epoch
	key, err := epochKey(keyed)
	if err != nil {
		return domain.Message{}, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return domain.Message{}, err
	}
	pt, err := aead.Open(nil, mp.Nonce, mp.Cipher, additionalData(g.WireID, mp.Sender, mp.Epoch, mp.Seq))
	if err != nil {
		return domain.Message{}, domain.Violation("message does not decrypt", err)
	}
	var body messageBody
	if err := json.Unmarshal(pt, &body); err != nil {
		return domain.Message{}, domain.Violation("malformed message body", err)
	}

	msg := domain.Message{
		EnvelopeID: env.ID,
		GroupID:    g.ID,
		Sender:     mp.Sender,
		Epoch:      mp.Epoch,
		Seq:        mp.Seq,
		CreatedAt:  env.CreatedAt,
	}
	if body.Update == nil {
		msg.Content = body.Text
		return msg, nil
	}

	if mp.Sender != g.Creator {
		return domain.Message{}, domain.Violation("membership update from non-creator", nil)
	}
	msg.Update = true
	msg.Content = body.Update.Member.Hex()[:12] + " joined"
	// Stale replays (epoch already reached) leave the group untouched.
	if body.Update.Epoch == g.Epoch+1 {
		if !g.HasMember(body.Update.Member) {
			g.Members = append(g.Members, body.Update.Member)
		}
		g.Epoch = body.Update.Epoch
		g.PendingCommit = true
		if err := e.store.SaveGroup(g); err != nil {
			return domain.Message{}, domain.Storage("save group", err)
		}
		e.log.Debug("applied membership update", "group", g.ID, "epoch", g.Epoch)
	}
	return msg, nil
}
