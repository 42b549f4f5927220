package didcomm

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewEnvelopeShape(t *testing.T) {
	body := map[string]any{"request_id": "r1", "content": "need tire pressure"}
	env, err := New("did:ssi:entity:a", "did:ssi:entity:b", "request", body, ReplyTo("m-0"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasSuffix(env.Type, "/request") {
		t.Fatalf("unexpected type %q", env.Type)
	}
	if env.ID == "" || env.CreatedTime == "" {
		t.Fatalf("expected id and created_time to be set")
	}
	if len(env.To) != 1 || env.To[0] != "did:ssi:entity:b" {
		t.Fatalf("unexpected to list %v", env.To)
	}
	if env.ThreadID != "m-0" {
		t.Fatalf("expected thid m-0, got %q", env.ThreadID)
	}
	var decoded map[string]any
	if err := json.Unmarshal(env.Body, &decoded); err != nil {
		t.Fatalf("body not valid JSON: %v", err)
	}
	if decoded["request_id"] != "r1" {
		t.Fatalf("body lost request_id: %v", decoded)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	env, _ := New("did:ssi:entity:a", "did:ssi:entity:b", "response", map[string]any{"request_id": "r1"})
	secret := []byte("agreed shared secret")

	sealed, err := Seal(env, secret, "did:ssi:entity:a#keys-1", "did:ssi:entity:b#keys-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(sealed.Ciphertext, "request_id") {
		t.Fatalf("ciphertext leaks plaintext")
	}

	opened, err := Open(sealed, secret)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened.ID != env.ID || string(opened.Body) != string(env.Body) {
		t.Fatalf("round trip mismatch")
	}
}

func TestOpenRejectsWrongSecret(t *testing.T) {
	env, _ := New("did:ssi:entity:a", "did:ssi:entity:b", "request", map[string]any{"request_id": "r1"})
	sealed, err := Seal(env, []byte("secret-one"), "a#keys-1", "b#keys-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(sealed, []byte("secret-two")); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestOpenRejectsHeaderTampering(t *testing.T) {
	env, _ := New("did:ssi:entity:a", "did:ssi:entity:b", "request", map[string]any{"request_id": "r1"})
	secret := []byte("agreed shared secret")
	sealed, err := Seal(env, secret, "a#keys-1", "b#keys-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed.SenderKID = "mallory#keys-1"
	if _, err := Open(sealed, secret); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed after header tampering, got %v", err)
	}
}
