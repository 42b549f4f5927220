package keystore

import (
	"errors"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	msg := []byte("ownership transfer for did:ssi:entity:abc")
	sig, err := Sign(kp.PrivateKeyPEM, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(kp.PublicKeyPEM, msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(kp.PublicKeyPEM, []byte("tampered"), sig) {
		t.Fatalf("expected verification failure for tampered message")
	}
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	if Verify([]byte("not pem"), []byte("msg"), []byte("sig")) {
		t.Fatalf("garbage key must not verify")
	}
	kp, _ := Generate()
	if Verify(kp.PublicKeyPEM, []byte("msg"), []byte("garbage signature")) {
		t.Fatalf("garbage signature must not verify")
	}
}

func TestDirStoreRoundTrip(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	kp, _ := Generate()
	id := "did:ssi:entity:4a3f6f2e-8a62-49a7-b9a0-2f6d7745b2a1"
	if err := store.Put(id, kp); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.PrivateKeyPEM) != string(kp.PrivateKeyPEM) {
		t.Fatalf("private key mismatch after round trip")
	}

	_, err = store.Get("did:ssi:entity:missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
