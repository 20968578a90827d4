package crypto_test

import (
	"bytes"
	"testing"

	"marlin/internal/crypto"
)

func TestSealedBox_RoundTrip(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}

	blob, err := crypto.SealTo(pub, []byte("wrapped payload"), []byte("marlin-wrap"))
	if err != nil {
		t.Fatalf("SealTo: %v", err)
	}
	pt, err := crypto.Open(priv, blob, []byte("marlin-wrap"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, []byte("wrapped payload")) {
		t.Fatalf("got %q, want %q", pt, "wrapped payload")
	}
}

func TestSealedBox_WrongKeyFails(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	otherPriv, _, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}

	blob, err := crypto.SealTo(pub, []byte("secret"), []byte("marlin-wrap"))
	if err != nil {
		t.Fatalf("SealTo: %v", err)
	}
	if _, err := crypto.Open(otherPriv, blob, []byte("marlin-wrap")); err == nil {
		t.Fatal("Open with wrong key should fail")
	}
}
