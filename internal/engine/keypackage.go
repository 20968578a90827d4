package engine

import (
	"encoding/json"

	"github.com/google/uuid"

	"marlin/internal/crypto"
	"marlin/internal/domain"
)

// keyPackageSigningBytes is the canonical byte string covered by the key
// package signature.
func keyPackageSigningBytes(kp domain.KeyPackage) []byte {
	b := make([]byte, 0, len(kp.ID)+64)
	b = append(b, kp.ID.String()...)
	b = append(b, kp.Owner.Slice()...)
	b = append(b, kp.InitKey.Slice()...)
	return b
}

// GenerateKeyPackage mints a key package with a fresh init key, stores the
// pair locally and returns the wire form.
func (e *Engine) GenerateKeyPackage() (domain.KeyPackage, error) {
	initPriv, initPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.KeyPackage{}, err
	}

	kp := domain.KeyPackage{
		ID:         domain.KeyPackageID(uuid.NewString()),
		Owner:      e.id.PublicKey(),
		SigningKey: e.id.EdPub,
		InitKey:    initPub,
		CreatedAt:  now(),
	}
	kp.Signature = crypto.Sign(e.id.EdPriv, keyPackageSigningBytes(kp))

	pair := domain.KeyPackagePair{KeyPackage: kp, InitPriv: initPriv}
	if err := e.store.SaveKeyPackage(pair); err != nil {
		return domain.KeyPackage{}, domain.Storage("save key package", err)
	}
	e.log.Debug("generated key package", "id", kp.ID)
	return kp, nil
}

// AdvertiseKeyPackage builds the kind-443 advertisement for a key package.
func (e *Engine) AdvertiseKeyPackage(kp domain.KeyPackage) (domain.Envelope, error) {
	payload, err := json.Marshal(kp)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		ID:        newEnvelopeID(),
		Kind:      domain.KindKeyPackage,
		Author:    kp.Owner,
		CreatedAt: now(),
		Payload:   payload,
	}, nil
}

// ParseKeyPackage validates a fetched advertisement: wire kind, author
// binding and signature.
func (e *Engine) ParseKeyPackage(env domain.Envelope) (domain.KeyPackage, error) {
	if env.Kind != domain.KindKeyPackage {
		return domain.KeyPackage{}, domain.Violation("not a key package advertisement", nil)
	}
	var kp domain.KeyPackage
	if err := json.Unmarshal(env.Payload, &kp); err != nil {
		return domain.KeyPackage{}, domain.Violation("malformed key package payload", err)
	}
	if kp.Owner != env.Author {
		return domain.KeyPackage{}, domain.Violation("key package owner does not match author", nil)
	}
	if !crypto.Verify(kp.SigningKey, keyPackageSigningBytes(kp), kp.Signature) {
		return domain.KeyPackage{}, domain.Violation("bad key package signature", nil)
	}
	return kp, nil
}
