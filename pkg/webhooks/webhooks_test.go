package webhooks

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignRequestThenVerify(t *testing.T) {
	body := []byte(`{"status":"approved"}`)
	req := httptest.NewRequest(http.MethodPost, "http://example.com/hook", nil)
	if err := SignRequest(req, "secret-1", "evt_1", "consent.outcome", body); err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	res, err := Verify(req.Header, body, "secret-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid {
		t.Fatal("expected valid signature")
	}
	if res.EventID != "evt_1" || res.EventType != "consent.outcome" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	body := []byte(`{"status":"approved"}`)
	h := http.Header{}
	h.Set(SignatureHeader, Sign("secret-1", body))

	res, err := Verify(h, body, "secret-2")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("expected invalid signature under wrong secret")
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	h := http.Header{}
	h.Set(SignatureHeader, Sign("secret-1", []byte(`{"status":"approved"}`)))

	res, err := Verify(h, []byte(`{"status":"denied"}`), "secret-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("expected invalid signature for tampered body")
	}
}

func TestVerifyMissingHeader(t *testing.T) {
	res, err := Verify(http.Header{}, []byte("x"), "secret-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("missing header must not verify")
	}
	if res.EventType != "unknown" {
		t.Fatalf("event type = %q", res.EventType)
	}
}

func TestVerifyEmptySecret(t *testing.T) {
	if _, err := Verify(http.Header{}, nil, ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
