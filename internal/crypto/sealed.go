package crypto

import (
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"marlin/internal/domain"
	"marlin/internal/util/memzero"
)

// sealedBox is the wire form of a sealed payload: an ephemeral public key and
// an AEAD ciphertext under the derived shared key.
type sealedBox struct {
	Eph    domain.X25519Public `json:"eph"`
	Nonce  []byte              `json:"nonce"`
	Cipher []byte              `json:"cipher"`
}

var errSealedBoxOpen = errors.New("sealed box does not open for this key")

// SealTo encrypts plaintext so that only the holder of the private key
// matching pub can read it. A fresh ephemeral X25519 pair hides the sender.
func SealTo(pub domain.X25519Public, plaintext, info []byte) ([]byte, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return nil, err
	}
	shared, err := DH(ephPriv, pub)
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(shared[:], nil, info, chacha20poly1305.KeySize)
	memzero.Zero(shared[:])
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, ephPub.Slice())
	return json.Marshal(sealedBox{Eph: ephPub, Nonce: nonce, Cipher: ct})
}

// Open decrypts a sealed box with the recipient's private key.
func Open(priv domain.X25519Private, blob, info []byte) ([]byte, error) {
	var box sealedBox
	if err := json.Unmarshal(blob, &box); err != nil {
		return nil, err
	}
	shared, err := DH(priv, box.Eph)
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(shared[:], nil, info, chacha20poly1305.KeySize)
	memzero.Zero(shared[:])
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, box.Nonce, box.Cipher, box.Eph.Slice())
	if err != nil {
		return nil, errSealedBoxOpen
	}
	return pt, nil
}
